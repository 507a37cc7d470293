// Package bulksend implements the bulk email send job.
//
// A job is started from validated operator input, split into fixed-size
// chunks and processed one chunk per step. Every step sends to each
// recipient of its chunk, merges the outcomes into the job's running
// aggregate and schedules the next step. The last step finalizes the
// aggregate and writes a failure report when any recipient failed.
//
// Steps may run on any worker. A per-job lock keeps a single writer, and
// the aggregate records merged chunk indexes so a redelivered step is a
// no-op.
//
// The service layer depends on the Repository interface defined in
// repository.go and never imports net/http or database/sql directly.
package bulksend
