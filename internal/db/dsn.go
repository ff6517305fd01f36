package db

import (
	"errors"
	"net/url"
	"strings"
)

// WithDBName returns a DSN identical to the input but with the database path replaced.
// Supports postgres:// and postgresql:// schemes; a DSN without a scheme is read as postgres://.
func WithDBName(dsn, database string) (string, error) {
	u, err := parseDSN(dsn)
	if err != nil {
		return "", err
	}
	u.Path = "/" + strings.TrimPrefix(database, "/")
	return u.String(), nil
}

// DBName returns the database named in dsn, or "" if it cannot be parsed.
func DBName(dsn string) string {
	u, err := parseDSN(dsn)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

func parseDSN(dsn string) (*url.URL, error) {
	if dsn == "" {
		return nil, errors.New("empty DSN")
	}
	if !strings.Contains(dsn, "://") {
		dsn = "postgres://" + dsn
	}
	return url.Parse(dsn)
}
