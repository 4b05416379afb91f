// Package models defines the gorm models of the recording database: records,
// streams, results, parameters and tasks. Every recording server shares the
// same schema, so the models serve both the local and the remote databases.
package models
