package interfaces

import "teamwire/pkg/types"

// CredentialStore owns the current session's credential pair
// ARCHITECTURAL DISCOVERY: The store is the only mutable resource shared
// across components; writes always replace the whole pair so readers never
// observe a half-updated credential set
type CredentialStore interface {
	// Get returns the current session and whether one is present.
	// Absence of a session means the client is unauthenticated.
	Get() (types.Session, bool)

	// Set replaces the stored session atomically.
	Set(session types.Session) error

	// Clear removes the stored session. Redirecting the user to the
	// authentication surface afterwards is the caller's responsibility.
	Clear() error
}

// KeyValueStore persists small named values across restarts
// FUNCTIONAL DISCOVERY: Push subscription state shares the credential
// database rather than growing a second storage file
type KeyValueStore interface {
	// Put stores value under name, replacing any previous value.
	Put(name, value string) error

	// Fetch returns the value stored under name and whether it exists.
	Fetch(name string) (string, bool, error)

	// Delete removes the value stored under name. Deleting an absent name
	// is not an error.
	Delete(name string) error
}
