// Package gemini adapts the Google Gen AI SDK to the text, vision, and image
// generation interfaces used by composition validation.
package gemini
