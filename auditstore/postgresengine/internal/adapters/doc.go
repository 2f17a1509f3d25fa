// Package adapters wraps the supported database access libraries
// (pgx pool, database/sql, sqlx) behind one minimal interface so the
// engine can build and execute its SQL without caring which handle the
// caller connected with.
package adapters
