// Package postgresengine provides the durable Postgres implementation of
// the auditstore.Store interface.
//
// The engine works with any of three database access libraries: a
// pgxpool.Pool, a standard library sql.DB, or a sqlx.DB, selected through
// the corresponding constructor. SQL is built with goqu.
//
// Expected schema (name configurable via WithTableName):
//
//	CREATE TABLE audit_events (
//	    sequence_number       BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
//	    event_id              TEXT        NOT NULL UNIQUE,
//	    event_type            TEXT        NOT NULL,
//	    entity_id             TEXT        NOT NULL DEFAULT '',
//	    process_instance_id   TEXT        NOT NULL DEFAULT '',
//	    process_definition_id TEXT        NOT NULL DEFAULT '',
//	    occurred_at           BIGINT      NOT NULL,
//	    service_name          TEXT        NOT NULL DEFAULT '',
//	    service_version       TEXT        NOT NULL DEFAULT '',
//	    payload               JSONB       NOT NULL
//	);
//	CREATE INDEX audit_events_event_type_idx ON audit_events (event_type);
//	CREATE INDEX audit_events_entity_id_idx ON audit_events (entity_id);
//	CREATE INDEX audit_events_process_instance_id_idx ON audit_events (process_instance_id);
//	CREATE INDEX audit_events_process_definition_id_idx ON audit_events (process_definition_id);
//
// Appends are idempotent on event_id: a conflicting insert is a no-op and
// is reported as auditstore.Deduplicated. Query results are ordered by
// sequence_number ascending, which makes pagination stable across
// repeated identical queries.
package postgresengine
