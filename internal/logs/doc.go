// Package logs reads back the CLI's own log file for the "storyqa logs"
// command: the last N lines, optionally narrowed to one story, then an
// optional poll-based follow.
package logs
