// Package core validates tabular data files against catalog definitions.
//
// This package holds the validation engine, independent of any transport
// or report format. It is used by the HTTP service, the CLI and the inbox
// watcher without modification.
//
// # Processing
//
// [Processor.Process] takes a data file and the name of a package or
// catalog. Every file goes through the same steps:
//
//  1. Read: the extension selects the parser (CSV, XLSX, XLS). CSV files
//     are decoded as UTF-8 with a Latin-1 fallback.
//  2. Reconcile: the loaded columns are aligned with the catalog's fields.
//     A column count mismatch is one structural error; processing goes on.
//  3. Coerce: each column is converted to its declared type. Cells that do
//     not convert are reported one by one.
//  4. Validate: required and unique checks, then field, row and catalog
//     rules. Package rules run once every member of a ZIP package is
//     loaded.
//
// Rule expressions are run by a [RuleEvaluator]; diagnostics go to a
// [Reporter]. Neither is implemented here.
//
// # Field Types
//
// Field types are registered at init time using [RegisterType]:
//
//	core.RegisterType(TypeDefinition{
//	    Name:   "texto",
//	    Coerce: coerceText,
//	})
//
// # Throttling
//
// On tables with more than [DefaultSmallFileThreshold] rows, an ERROR rule
// shows at most [DefaultMaxErrorsPerRule] failing rows in detail. Counts
// always include every failure. A rule that reaches the limit is capped:
// later files in the run only count its failures. Capped rules are listed
// at the end of the run.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - CFG001-CFG006: Configuration errors (unknown names, bad types)
//   - FILE001-FILE005: File errors (extension, format, decoding)
//   - RULE001: Rule evaluation errors
//   - EXEC001-EXEC004: Execution errors (busy, cancelled, timeout)
//   - DB001-DB003: Database errors
package core
