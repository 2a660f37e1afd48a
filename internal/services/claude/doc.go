// Package claude adapts the Anthropic Messages API to the text and vision
// model interfaces used by composition validation and fidelity scoring.
package claude
