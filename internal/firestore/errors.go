package firestore

import "fmt"

// StoreError is a non-2xx response from the document store.
type StoreError struct {
	Status int
	Body   string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("firestore api error (%d): %s", e.Status, e.Body)
}

// ShapeError is a 2xx response missing the structure the caller expects.
type ShapeError struct {
	Path   string
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("unexpected document shape at %q: %s", e.Path, e.Reason)
}

// CredentialError is a missing or failed credential exchange.
type CredentialError struct {
	Reason string
	Err    error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("firestore credentials: %s: %v", e.Reason, e.Err)
	}
	return "firestore credentials: " + e.Reason
}

func (e *CredentialError) Unwrap() error { return e.Err }
