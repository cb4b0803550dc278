package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// UserIDKey is the gin context key holding the authenticated user ID.
const UserIDKey = "userID"

// getUserID returns the authenticated user ID, or 0.
func getUserID(c *gin.Context) uint64 {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0
	}
	id, _ := v.(uint64)
	return id
}

// queryLimit parses the limit query parameter, falling back to def.
func queryLimit(c *gin.Context, def int) int {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return def
	}
	limit, errParse := strconv.Atoi(raw)
	if errParse != nil || limit <= 0 {
		return def
	}
	return limit
}
