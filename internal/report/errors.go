package report

import "errors"

// ErrNotFound covers every retrieval failure: bad name, missing file,
// unreadable file. Callers must not distinguish between them.
var ErrNotFound = errors.New("report not found")
