// Package services defines shared utilities consumed by the QA stages and the
// model integrations.
//
// Key responsibilities:
//   - Context helpers that stamp story IDs, page numbers, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures classify
//     consistently (unavailable collaborator vs bad input vs transient).
//
// Use these helpers when wiring new stage logic so operational behaviour stays
// uniform across the composition loop and the repair-targeting pipeline.
package services
