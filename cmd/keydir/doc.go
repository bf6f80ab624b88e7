// Package main runs the convokey key directory: the server that stores
// published public keys, group membership, and per-member wrapped group keys.
// It never sees private keys or plaintext group keys.
//
// HTTP API
//
//	POST /session { "user_id": U }
//	    Issue a bearer token for U. Every other route requires one.
//
//	GET /keys/{user}
//	    Return the published public key record of {user}, or 404.
//
//	POST /keys
//	    Insert the caller's public key record. 409 if one exists.
//
//	PUT /keys/{user}
//	    Replace the caller's public key. {user} must be the caller.
//
//	GET /groups/{group}/members
//	PUT /groups/{group}/members { "members": [...] }
//	    Read or replace the member list. The caller must be in the new list
//	    and, when the group exists, in the current one.
//
//	GET /groups/{group}/keys/me
//	    Return the caller's own wrapped group key row, or 404.
//
//	POST /groups/{group}/keys
//	    Upsert wrapped rows keyed by (group, target user). Targets must be members.
//
//	POST /groups/{group}/keys/new
//	    Insert wrapped rows; 409 and nothing written if any already exists.
//
//	GET /groups/{group}/keys/exists
//	GET /groups/{group}/keys/missing
//	    Whether any row exists; which members have none.
//
//	POST /groups/{group}/claim
//	DELETE /groups/{group}/claim
//	    Take or release the right to originate the group key.
//
// Behaviour
//
//   - Group routes answer 403 unless the caller is a member of {group}.
//   - Schema violations answer 422 with code "schema_constraint".
//   - Requests are rate limited per client; excess answers 429.
//   - Storage is memory, postgres or mongo (server.backend).
//   - A structured access log records method, path, remote, status, bytes and
//     duration for each request.
package main
