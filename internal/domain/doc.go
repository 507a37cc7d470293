// Package domain defines the core types of the bulk send engine.
//
// Types in this package are value objects shared by the extractor, the
// scheduler, the executor, the repositories and the HTTP layer. They carry
// JSON tags because job state is persisted between chunk steps.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - Behavior is limited to pure state transitions on the type itself
package domain
