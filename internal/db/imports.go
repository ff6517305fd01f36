package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var ErrNoCityDatabase = errors.New("no imported database for city")

// ResolveLatestImportDBName returns the db_name with the most recent imported_at
// from public.latest_successful_imports where db_name ILIKE '%city%'.
func ResolveLatestImportDBName(ctx context.Context, meta *sql.DB, city string) (string, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return "", fmt.Errorf("city is required")
	}
	// Fully qualified to the public schema (assumes we are connected to the 'postgres' database)
	q := `
SELECT db_name
FROM public.latest_successful_imports
WHERE db_name ILIKE $1
ORDER BY imported_at DESC
LIMIT 1`
	var dbName sql.NullString
	if err := meta.QueryRowContext(ctx, q, containsPattern(city)).Scan(&dbName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: %q", ErrNoCityDatabase, city)
		}
		return "", err
	}
	if !dbName.Valid || dbName.String == "" {
		return "", fmt.Errorf("%w: empty db_name for %q", ErrNoCityDatabase, city)
	}
	return dbName.String, nil
}

// ResolveCityDB opens a short-lived connection to the cluster's 'postgres'
// database and resolves the latest import for city.
func ResolveCityDB(ctx context.Context, baseDSN, city string) (string, error) {
	rootDSN, err := WithDBName(baseDSN, "postgres")
	if err != nil {
		return "", fmt.Errorf("invalid base DSN: %w", err)
	}
	metaDB, err := Open(rootDSN)
	if err != nil {
		return "", fmt.Errorf("db open (meta): %w", err)
	}
	defer metaDB.Close()
	if err := Ping(ctx, metaDB); err != nil {
		return "", fmt.Errorf("db ping (meta): %w", err)
	}
	return ResolveLatestImportDBName(ctx, metaDB, city)
}

// Connect opens the database to serve from. With a city it resolves the
// latest import first; the returned name is the database in use.
func Connect(ctx context.Context, baseDSN, city string) (*sql.DB, string, error) {
	dsn := baseDSN
	name := DBName(baseDSN)
	if city != "" {
		resolved, err := ResolveCityDB(ctx, baseDSN, city)
		if err != nil {
			return nil, "", fmt.Errorf("resolve latest import for city %q: %w", city, err)
		}
		name = resolved
		if dsn, err = WithDBName(baseDSN, resolved); err != nil {
			return nil, "", fmt.Errorf("compose DSN: %w", err)
		}
	}
	sqlDB, err := Open(dsn)
	if err != nil {
		return nil, "", fmt.Errorf("db open: %w", err)
	}
	if err := Ping(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, "", fmt.Errorf("db ping: %w", err)
	}
	return sqlDB, name, nil
}
