// Package domain defines core data models and interfaces shared across the app.
// It contains plain types (wire/state) and contracts (interfaces) only, plus
// the sentinel errors directory backends use at the remote boundary.
package domain
