// Package streak maintains the daily application streak of a user.
package streak

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pathway-hq/credits/internal/db"
	"github.com/pathway-hq/credits/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NoActivityMessage is returned when the user has nothing qualifying today.
const NoActivityMessage = "Apply to an opportunity today to grow your streak"

// ErrUserNotFound is returned when the user row does not exist.
var ErrUserNotFound = errors.New("streak: user not found")

// Result is the outcome of an UpdateStreak call.
type Result struct {
	Success       bool   `json:"success"`
	Message       string `json:"message,omitempty"`
	Streak        int    `json:"streak"`
	LongestStreak int    `json:"longest_streak"`
	IsNewRecord   bool   `json:"is_new_record"`
}

// State is the stored streak of a user as seen today.
type State struct {
	CurrentStreak  int        `json:"current_streak"`
	LongestStreak  int        `json:"longest_streak"`
	LastStreakDate *time.Time `json:"last_streak_date"`
}

// Engine applies the day-boundary streak rules. Days are UTC calendar days.
type Engine struct {
	db       *gorm.DB
	activity ActivitySource
	nowFn    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(nowFn func() time.Time) Option {
	return func(e *Engine) {
		if nowFn != nil {
			e.nowFn = nowFn
		}
	}
}

// NewEngine constructs an Engine.
func NewEngine(db *gorm.DB, activity ActivitySource, opts ...Option) *Engine {
	e := &Engine{db: db, activity: activity, nowFn: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// UpdateStreak counts today toward the user's streak if they did something qualifying.
// Calling it again on the same day leaves the counters unchanged.
func (e *Engine) UpdateStreak(ctx context.Context, userID uint64) (Result, error) {
	if e == nil || e.db == nil || e.activity == nil {
		return Result{}, errors.New("streak: engine not initialized")
	}
	today := civilDay(e.nowFn())
	yesterday := today.AddDate(0, 0, -1)

	if _, errLoad := e.loadUser(e.db.WithContext(ctx), userID); errLoad != nil {
		return Result{}, errLoad
	}
	count, errCount := e.activity.CountQualifying(ctx, userID, today, today.AddDate(0, 0, 1))
	if errCount != nil {
		return Result{}, errCount
	}
	if count == 0 {
		return Result{Success: false, Message: NoActivityMessage}, nil
	}

	var out Result
	errTx := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, errLoad := e.loadUser(db.LockForUpdate(tx), userID)
		if errLoad != nil {
			return errLoad
		}

		last := lastDay(user.LastStreakDate)
		if last != nil && last.Equal(today) {
			out = Result{
				Success:       true,
				Message:       "Streak already counted today",
				Streak:        user.CurrentStreak,
				LongestStreak: user.LongestStreak,
			}
			return nil
		}

		// With no counted day the stored counter is ignored; the streak starts from zero.
		next := 1
		message := "Streak restarted"
		switch {
		case last == nil:
			message = "Streak started"
		case last.Equal(yesterday):
			next = user.CurrentStreak + 1
			message = fmt.Sprintf("Streak extended to %d days", next)
		}
		longest := max(user.LongestStreak, next)

		todayDate := datatypes.Date(today)
		res := tx.Model(&models.User{}).
			Where("id = ? AND (last_streak_date IS NULL OR last_streak_date < ?)", userID, todayDate).
			Updates(map[string]any{
				"current_streak":   next,
				"longest_streak":   longest,
				"last_streak_date": todayDate,
			})
		if res.Error != nil {
			return fmt.Errorf("streak: update: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Another request counted today between our read and write.
			fresh, errReload := e.loadUser(tx, userID)
			if errReload != nil {
				return errReload
			}
			out = Result{
				Success:       true,
				Message:       "Streak already counted today",
				Streak:        fresh.CurrentStreak,
				LongestStreak: fresh.LongestStreak,
			}
			return nil
		}

		out = Result{
			Success:       true,
			Message:       message,
			Streak:        next,
			LongestStreak: longest,
			IsNewRecord:   next == longest && next > 1,
		}
		return nil
	})
	if errTx != nil {
		return Result{}, errTx
	}

	log.WithFields(log.Fields{
		"user_id":    userID,
		"streak":     out.Streak,
		"longest":    out.LongestStreak,
		"new_record": out.IsNewRecord,
	}).Debug("streak: updated")
	return out, nil
}

// GetStreak returns the stored streak. A streak whose last day is before yesterday
// is reported as 0 without being written back.
func (e *Engine) GetStreak(ctx context.Context, userID uint64) (State, error) {
	if e == nil || e.db == nil {
		return State{}, errors.New("streak: engine not initialized")
	}
	user, errLoad := e.loadUser(e.db.WithContext(ctx), userID)
	if errLoad != nil {
		return State{}, errLoad
	}
	state := State{
		CurrentStreak:  user.CurrentStreak,
		LongestStreak:  user.LongestStreak,
		LastStreakDate: lastDay(user.LastStreakDate),
	}
	yesterday := civilDay(e.nowFn()).AddDate(0, 0, -1)
	if state.LastStreakDate == nil || state.LastStreakDate.Before(yesterday) {
		state.CurrentStreak = 0
	}
	return state, nil
}

func (e *Engine) loadUser(conn *gorm.DB, userID uint64) (models.User, error) {
	var user models.User
	if errFind := conn.
		Select("id", "current_streak", "longest_streak", "last_streak_date").
		Where("id = ?", userID).
		Take(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.User{}, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
		}
		return models.User{}, fmt.Errorf("streak: load user: %w", errFind)
	}
	return user, nil
}

// civilDay truncates t to midnight of its UTC calendar day.
func civilDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func lastDay(d *datatypes.Date) *time.Time {
	if d == nil {
		return nil
	}
	day := civilDay(time.Time(*d))
	return &day
}
