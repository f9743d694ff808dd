// Package core provides the prompt processing engine and the service that
// exposes it.
//
// The engine turns a JSONL dataset into model calls: every line is decoded
// into a [Record], rendered against a prompt template with [Render], sent to
// a chat completion endpoint, and written back with the reply stored under a
// result field. It is independent of any transport and is used by the web
// handlers and the promptctl CLI alike.
//
// # Pipeline
//
//  1. [NewInputReader] normalizes the upload to UTF-8 (BOM, legacy charsets).
//  2. [DecodeStrict] or [DecodeTolerant] splits it into records.
//  3. A [Processor] renders one record and calls a [Completer].
//  4. A [Dispatcher] runs the processor over all records with a bounded
//     number of workers and yields results as they complete.
//  5. [Dispatcher.Collect] gathers a batch; the [Emitter] reports a streaming
//     run to a [Sink] as parse_error, item_log, progress, done and
//     fatal_error events.
//
// A failed call never aborts the run. Its record carries [ErrorMarker]
// followed by the error text in the result field and is counted once in
// [Tally.Errors].
//
// # Service
//
// [Service] adds persistence: projects with their API settings, the prompt
// template library and run records, all kept in a store. Concurrent runs are
// bounded by a [RunLimiter]; finished runs are reported to an optional
// [RunObserver].
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with support codes by
// [MapError].
package core
