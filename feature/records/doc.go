// Package records implements the reconciliation collaborators on top of the
// recording databases.
//
// # Components
//
//   - Repository: the local records, streams and results tables. It lists the
//     streams of a run, loads weak, approved and imported records, and imports a
//     remote record in one transaction that inserts the new row before revoking the
//     records it supersedes and disabling their results.
//   - SourceRegistry: opens remote server databases on first use, shares concurrent
//     connection attempts through singleflight and resolves blob roots.
//   - Parameters: node settings from the parameters table (server_number,
//     server_order_{kind}_records_import, is_{kind}_processing).
//   - TaskLocker: the run lock, a file lock plus a records_sync row in the tasks
//     table that also carries the completion percentage.
//
// Every server shares the schema described in the models package, so remote
// queries reuse the same gorm scopes as the local ones.
package records
