// Package postgres implements the key directory on Postgres using bun.
//
// Tables: e2e_public_keys (one row per user), e2e_group_keys (one row per
// group and member), e2e_group_members, and e2e_group_key_claims, whose
// primary key on group_id is what makes group key origination exclusive.
package postgres
