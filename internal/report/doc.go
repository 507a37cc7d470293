// Package report produces the failed-recipient CSV for a finished job and
// serves it back through a gateway that only ever resolves names matching
// the report pattern inside the configured staging store.
package report
