package front

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pathway-hq/credits/internal/credits"
	"github.com/pathway-hq/credits/internal/db"
	"github.com/pathway-hq/credits/internal/models"
	"github.com/pathway-hq/credits/internal/pricing"
	"github.com/pathway-hq/credits/internal/streak"
	"github.com/pathway-hq/credits/internal/unlock"
	"gorm.io/gorm"
)

func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "front-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	pricingSvc := pricing.NewService(conn)
	ledger := credits.NewLedger(conn, pricingSvc)

	r := gin.New()
	RegisterFrontRoutes(r, Services{
		Ledger:   ledger,
		Unlocker: unlock.NewUnlocker(conn, ledger, pricingSvc),
		Streak:   streak.NewEngine(conn, streak.NewGormActivitySource(conn)),
		Pricing:  pricingSvc,
	}, "X-User-ID")
	return r, conn
}

func createUser(t *testing.T, conn *gorm.DB, balance int64) uint64 {
	t.Helper()
	user := models.User{Email: "front-" + strconv.FormatInt(balance, 10) + "@example.com", Credits: balance}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	return user.ID
}

func doRequest(r *gin.Engine, method, path string, userID uint64, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		req.Header.Set("X-User-ID", strconv.FormatUint(userID, 10))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if errDecode := json.Unmarshal(w.Body.Bytes(), &out); errDecode != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), errDecode)
	}
	return out
}

func TestFrontRequiresIdentity(t *testing.T) {
	r, _ := setupRouter(t)
	if w := doRequest(r, http.MethodGet, "/v0/front/credits", 0, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/v0/front/pricing", 0, nil); w.Code != http.StatusOK {
		t.Fatalf("expected public pricing, got %d", w.Code)
	}
}

func TestFrontSpendFlow(t *testing.T) {
	r, conn := setupRouter(t)
	userID := createUser(t, conn, 3)

	w := doRequest(r, http.MethodPost, "/v0/front/credits/spend", userID, map[string]string{"action": "CUSTOM_CV"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := decode(t, w)["balance_after"]; got != float64(0) {
		t.Fatalf("expected balance_after=0, got %v", got)
	}

	w = doRequest(r, http.MethodPost, "/v0/front/credits/spend", userID, map[string]string{"action": "CUSTOM_CV"})
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["required"] != float64(3) || body["current"] != float64(0) {
		t.Fatalf("unexpected insufficient payload %v", body)
	}

	w = doRequest(r, http.MethodPost, "/v0/front/credits/spend", userID, map[string]string{"action": "TELEPORT"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action, got %d", w.Code)
	}

	w = doRequest(r, http.MethodGet, "/v0/front/credits/transactions", userID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if rows, _ := decode(t, w)["transactions"].([]any); len(rows) != 1 {
		t.Fatalf("expected 1 transaction, got %v", rows)
	}

	if w = doRequest(r, http.MethodGet, "/v0/front/credits", 987654, nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", w.Code)
	}
}

func TestFrontUnlockIsIdempotent(t *testing.T) {
	r, conn := setupRouter(t)
	userID := createUser(t, conn, 10)

	w := doRequest(r, http.MethodPost, "/v0/front/opportunities/opp-42/unlock", userID, map[string]string{"opportunity_type": "job"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if body := decode(t, w); body["already_unlocked"] != false || body["credits_spent"] != float64(5) {
		t.Fatalf("unexpected first unlock %v", body)
	}

	w = doRequest(r, http.MethodPost, "/v0/front/opportunities/opp-42/unlock", userID, nil)
	if body := decode(t, w); w.Code != http.StatusOK || body["already_unlocked"] != true {
		t.Fatalf("unexpected second unlock (%d) %v", w.Code, body)
	}

	w = doRequest(r, http.MethodGet, "/v0/front/opportunities/opp-42/unlock", userID, nil)
	if body := decode(t, w); body["unlocked"] != true {
		t.Fatalf("expected unlocked=true, got %v", body)
	}
}

func TestFrontStreakWithoutActivity(t *testing.T) {
	r, conn := setupRouter(t)
	userID := createUser(t, conn, 0)

	w := doRequest(r, http.MethodPost, "/v0/front/streak", userID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decode(t, w)
	if body["success"] != false || body["message"] != streak.NoActivityMessage {
		t.Fatalf("unexpected streak response %v", body)
	}

	w = doRequest(r, http.MethodGet, "/v0/front/streak", userID, nil)
	if body = decode(t, w); w.Code != http.StatusOK || body["current_streak"] != float64(0) {
		t.Fatalf("unexpected streak state (%d) %v", w.Code, body)
	}
}
