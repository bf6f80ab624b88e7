// Package e2e implements end-to-end encryption of message bodies.
//
// A Service is created per authenticated session. It makes sure the local
// user has a P-256 key pair whose public half is published in the key
// directory, derives 1:1 conversation keys with ECDH and HKDF, creates and
// distributes group keys wrapped per member, and encrypts or decrypts
// message bodies for the messaging layer.
//
// Group keys are originated by exactly one member: the directory's
// origination claim decides who generates the key, everyone else unwraps
// their own row. Members that joined late or had no published key when the
// key was created receive their row from the TopUpWorker, which runs in the
// background for as long as the Service lives.
//
// Close ends the session: the worker stops and every cached key is wiped.
package e2e
