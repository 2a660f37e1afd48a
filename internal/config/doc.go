// Package config loads, normalizes, and validates storyqa configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENROUTER_API_KEY, ANTHROPIC_API_KEY, and GEMINI_API_KEY. The Config type
// centralizes every knob the QA stages and CLI need, including the tunable
// dedup IoU threshold and per-type padding fractions.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
