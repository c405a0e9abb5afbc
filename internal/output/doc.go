// Package output decides whether market-data results are returned inline
// or written to a file, and performs the file writes safely.
//
// Large query results overwhelm LLM context windows, so every dataset is
// cost-estimated and compared against a configurable token threshold. Small
// results come back inline; large ones are streamed to CSV or JSON files
// (optionally gzip-compressed) under a fixed output root, and the caller
// receives a file reference with size and integrity metadata instead.
//
// # Components
//
// Size estimation: [Estimator] serializes small datasets fully and counts
// tokens exactly; datasets beyond a fixed row threshold are estimated from
// a leading sample so estimation stays sub-linear. Counting is pluggable
// through [TokenCounter], with a byte-length heuristic by default and a
// WordPiece tokenizer available when a vocab file is configured.
//
// Decisions: [Engine.Decide] combines the estimate, the threshold, and the
// caller's force_inline/force_file overrides into a [Decision], including a
// timestamped suggested filename. [Engine.Process] carries the decision
// through to a response envelope, delegating file output to [Writer].
//
// Path security: [SanitizeFilename], [ValidateContained], and [ResolveSafe]
// guarantee every resolved path stays inside the output root, defeating
// ".." traversal, absolute-path escapes, and symlinks that point outside
// the root. Security violations are always errors, never warnings.
//
// File writing: [Writer] streams CSV in row chunks and JSON through a
// bounded copy buffer, retries transient I/O failures with exponential
// backoff, removes partial output on unrecoverable failure, and records a
// streaming SHA-256 checksum when metadata collection is enabled.
//
// Projects: [ProjectStore] manages named subdirectories that isolate each
// caller's files, with idempotent creation, glob-filtered newest-first
// listings, and safe deletion.
//
// # Concurrency
//
// Decisions are pure and fast. Writes block only their own caller; the MCP
// layer runs each tool call in its own goroutine. No cross-call locking is
// provided: two writers racing on the same resolved path is an accepted
// limitation, which the timestamped default filenames make unlikely.
package output
