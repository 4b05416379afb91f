// Package utils provides loose value conversion for settings read from the
// parameters table, where every value is stored as text, and the parsing of
// comma separated server id lists used for source priority orders.
package utils
