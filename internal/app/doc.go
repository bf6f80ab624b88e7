// Package app wires application dependencies for the CLI and the key
// directory server.
//
// Config is loaded with viper from defaults, an optional YAML file and
// CONVOKEY_* environment variables. NewWire builds the secure store, key
// directory client and services from it; Open additionally logs a user in
// to the directory. OpenBackend picks the directory server's storage.
package app
