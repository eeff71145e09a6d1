// Package transport carries model calls for the mode engine. It defines the
// Responder contract the engine consumes, an OpenAI-compatible SSE client
// implementation of that contract, per-model rate limiting, and a mock
// model server for demos and tests.
//
// The contract is deliberately forgiving: a Responder resolves to (nil, nil)
// for ordinary model-side failures so callers can treat "no response" as an
// absent result rather than an error. Errors are reserved for
// programmer-error conditions, and the mode engine catches even those at
// its fan-out boundary.
package transport
