// Package commands defines the convokey CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init         Create the local key pair and publish its public half
//   - fingerprint  Print your fingerprint, or a peer's with --peer
//   - encrypt      Encrypt a message body for a peer or group
//   - decrypt      Decrypt a message body from a peer or group
//   - send         Encrypt and store a message
//   - history      Show a conversation, decrypted
//   - members      Show or set a group's members
//   - reset        Delete the local key pair
//
// # Implementation
//
// The root command loads configuration (defaults, --config file, CONVOKEY_*
// environment, then flags) and a zap logger before any subcommand runs.
// Commands that talk to the key directory open a logged-in app.App; the
// offline ones (fingerprint without --peer, reset) only build the wiring.
package commands
