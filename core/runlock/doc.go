// Package runlock provides the process-wide exclusive lock that keeps two sync runs of
// the same kind from working on one server at the same time. Locks are advisory file
// locks, so they are released by the kernel when the holding process dies.
package runlock
