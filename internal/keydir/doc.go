// Package keydir holds the key directory: the remote tables of published
// public keys and wrapped group keys that clients exchange key material
// through.
//
// Three pieces live here:
//   - Memory, an in-process Directory used by tests and the dev server.
//   - Server, a JSON/HTTP front for any Backend, with bearer-token caller
//     identity, per-client rate limiting and row-level access rules.
//   - HTTPClient, the Directory implementation the client side uses to talk
//     to a Server.
//
// Durable backends live in the postgres and mongo subpackages.
package keydir
