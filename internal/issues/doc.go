// Package issues converts the three upstream evaluator report shapes into
// one UnifiedIssue schema, backfills missing regions from per-page character
// boxes, maps free-text labels onto a closed type set, and removes spatially
// redundant duplicates.
//
// The repair stage advances issues with Transition and RecordAttempt; every
// other stage treats issues as values.
package issues
