package app

import (
	"net/url"
	"strings"
)

// describeDSN renders a DSN for logs with the password and query removed.
func describeDSN(dsn string) string {
	trimmed := strings.TrimSpace(dsn)
	if scheme, rest, ok := strings.Cut(trimmed, ":"); ok && (strings.EqualFold(scheme, "file") || strings.EqualFold(scheme, "sqlite")) {
		path, _, _ := strings.Cut(strings.TrimPrefix(rest, "//"), "?")
		return "sqlite:" + path
	}
	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		return "unknown"
	}
	if u.User != nil {
		u.User = url.User(u.User.Username())
	}
	u.RawQuery = ""
	return u.String()
}
