// Package recipients turns raw recipient input (free text and CSV/TXT uploads)
// into a bounded, deduplicated, lowercase set of valid email addresses.
//
// Each source is scanned independently under its own limits and then merged
// in first-seen order. Malformed tokens are dropped without error.
package recipients
