// Package llm provides an OpenRouter chat client and the notebook generator
// built on it.
//
// # Client
//
// Client sends chat completion requests with an optional file attachment
// (the uploaded PDF travels as a base64 data URL file part). The API key and
// model may be set per request, which is how the caller-supplied credential
// reaches the provider. Responses are tolerant of provider quirks: content is
// taken from message, delta, legacy text, function call, or tool call
// arguments, in that order.
//
// # Generator
//
// Generator implements pipeline.Pipeline in five milestones: read the PDF,
// outline the paper (model reasoning is forwarded as thinking), deliver an
// outline notebook as a draft, write the implementation cells, and assemble
// the final notebook.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, empty content, and network
// timeouts with exponential backoff (base 1s, max 10s, up to 5 attempts by
// default). Context cancellation aborts retries immediately. The generator
// maps provider failures onto the services error markers: 401/402/403 are
// configuration errors, 429 and 5xx are transient.
package llm
