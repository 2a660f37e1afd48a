// Package llm provides an OpenRouter chat client used as the text and vision
// model for scene description, composition comparison, scene repair, and
// semantic fidelity scoring.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.CompleteText: system/user prompts, free-form text back.
// Client.CompleteJSON: same, with the provider's JSON response mode.
// Client.DescribeImage: one image plus an instruction, free-form text back.
// Client.HealthCheck: verify API key and model availability.
//
// # JSON Extraction
//
// Models wrap their JSON in prose and code fences. ExtractJSONObject finds the
// first brace-balanced object (string-literal aware) and DecodeObject decodes
// it, retrying once after EscapeControlChars. Callers decide what degraded
// result to return when decoding fails.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, empty completions, and
// network timeouts with exponential backoff (base 1s, max 10s, up to 3
// attempts by default). Context cancellation aborts retries immediately. No
// request timeout is applied unless TimeoutSeconds is set.
package llm
