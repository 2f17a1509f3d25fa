// Package auditstore implements the core of the runtime audit trail:
// the RuntimeEvent model with its closed set of payload variants, the
// event type registry that classifies and decodes raw producer records,
// the conjunctive query filter, the batch ingestion pipeline, and the
// query engine serving lookups and filtered, paginated retrieval.
//
// Durable storage is pluggable behind the Store interface. The
// postgresengine subpackage provides the production implementation, the
// memoryengine subpackage an in-process one for tests and embedded use.
package auditstore
