package config

import (
	"database/sql"
	"log"
	"strings"
	"time"

	_ "github.com/lib/pq" // database/sql driver for the sql.DB based tests
)

func PostgresSQLDBTestConfig() *sql.DB {
	const defaultMaxOpenConnections = 8
	const defaultMaxIdleConnections = 2
	const defaultMaxConnLifetime = time.Hour
	const defaultMaxConnIdleTime = time.Minute * 5

	db, err := sql.Open("postgres", sslDisabledURL())
	if err != nil {
		log.Fatal("Failed to open database connection, error: ", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConnections)
	db.SetMaxIdleConns(defaultMaxIdleConnections)
	db.SetConnMaxLifetime(defaultMaxConnLifetime)
	db.SetConnMaxIdleTime(defaultMaxConnIdleTime)

	if pingErr := db.Ping(); pingErr != nil {
		log.Fatal("Failed to ping database, error: ", pingErr)
	}

	return db
}

// sslDisabledURL appends sslmode=disable for the lib/pq based handles,
// which do not share pgx's default negotiation.
func sslDisabledURL() string {
	url := databaseURL()
	if strings.Contains(url, "sslmode=") {
		return url
	}

	if strings.HasSuffix(url, "?") {
		return url + "sslmode=disable"
	}

	if strings.Contains(url, "?") {
		return url + "&sslmode=disable"
	}

	return url + "?sslmode=disable"
}
