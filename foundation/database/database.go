// Package database provides support for access the database.
package database

import (
	"fmt"
	"net/url"

	_ "github.com/jackc/pgx/stdlib"
	"github.com/jmoiron/sqlx"
)

// Config is the required properties to use the database.
type Config struct {
	User       string
	Password   string
	Host       string
	Name       string
	DisableTLS bool
}

// Open knows how to open a database connection based on the configuration.
func Open(cfg Config) (*sqlx.DB, error) {
	sslMode := "require"
	if cfg.DisableTLS {
		sslMode = "disable"
	}

	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host,
		Path:     cfg.Name,
		RawQuery: q.Encode(),
	}
	return sqlx.Connect("pgx", u.String())
}

// SelectNamedIn runs a named query whose parameters may include slices for
// "in (:param)" expansion, selecting the result rows into dest. Wraps the
// sqlx.Named, sqlx.In and Rebind boilerplate.
func SelectNamedIn(db *sqlx.DB,
	dest interface{},
	statementString string,
	sqlArgMap map[string]interface{}) error {

	query, args, err := sqlx.Named(statementString, sqlArgMap)
	if err != nil {
		return fmt.Errorf("binding named parameters: %w", err)
	}
	query, args, err = sqlx.In(query, args...)
	if err != nil {
		return fmt.Errorf("expanding in clause: %w", err)
	}
	return db.Select(dest, db.Rebind(query), args...)
}
