// Package preflight provides readiness checks for the model providers and
// filesystem paths that storyqa depends on.
//
// RunAll covers local state plus the OpenRouter probe. The CLI "storyqa
// status" command adds Anthropic and Gemini probes through CheckService once
// it has built those clients.
package preflight
