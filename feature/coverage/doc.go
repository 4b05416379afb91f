// Package coverage reports which parts of a window are covered by approved local
// recordings and which gaps a sync run would try to fill. It never changes the
// database.
//
// The report is served at GET /api/coverage and printed by the coverage command.
package coverage
