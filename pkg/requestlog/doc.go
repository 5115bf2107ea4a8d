// Package requestlog defines the request log document and the contracts
// around it: the Sink the recorder appends to, the Storage used for queries
// and retention, and the Request captured from an inbound HTTP request.
//
// Subpackages:
//
//   - recorder builds entries, redacts credentials and persists them
//   - storage provides memory and SQLite backends
//   - export writes entries as JSON or CSV
//   - retention prunes old entries on a cron schedule, optionally archiving
//     them to a local directory or S3 first
package requestlog
