package repository

import (
	"database/sql"
	"time"

	"github.com/avast/retry-go"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// DB wraps the SQL connection pool shared by the Postgres-backed stores.
type DB struct {
	*sql.DB
}

// NewDB opens a Postgres pool and waits for it to become reachable. The
// ping is retried so the server survives starting before the database.
func NewDB(databaseURL string) (*DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	err = retry.Do(
		db.Ping,
		retry.Attempts(10),
		retry.Delay(500*time.Millisecond),
	)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "pinging database")
	}
	return &DB{db}, nil
}
