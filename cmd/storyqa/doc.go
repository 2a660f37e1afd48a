// Command storyqa is the operator CLI for illustrated-story quality checks.
//
// validate-scene renders a cheap preview of a scene specification, asks a
// vision model what it sees, and repairs the scene when the two disagree.
// target folds the post-rendering evaluator reports into one deduplicated
// list of repair targets per page, crops a thumbnail for each, and records
// everything in the story's manifest. fidelity scores how well a page tells
// its story text. Every run is appended to a SQLite ledger that history and
// status read back.
package main
