// Package targeting runs the post-rendering repair-targeting pipeline:
// evaluator reports are normalized, deduplicated per page, cropped into
// thumbnails, and recorded in the story manifest.
package targeting
