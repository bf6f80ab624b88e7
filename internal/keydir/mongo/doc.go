// Package mongo implements the key directory on MongoDB.
//
// Public keys are keyed by user ID, group membership by group ID, and the
// origination claim by group ID so that the unique _id index decides which
// member generates a group's key.
package mongo
