package woocommerce

import (
	"errors"
	"fmt"
)

// SyncDisabledError is returned when a server or link has sync turned off.
// Callers treat it as a clean skip, not a failure.
type SyncDisabledError struct {
	ServerID string
	Reason   string
}

func (e *SyncDisabledError) Error() string {
	return fmt.Sprintf("sync disabled for server %s: %s", e.ServerID, e.Reason)
}

// NotFoundError is returned when a remote record does not exist
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found on remote", e.Resource, e.ID)
}

// ValidationError is returned when the remote rejects a payload
type ValidationError struct {
	Resource string
	Message  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("remote rejected %s: %s", e.Resource, e.Message)
}

// RemoteError wraps transport failures and non-2xx responses that are not
// covered by a more specific error
type RemoteError struct {
	StatusCode int
	Endpoint   string
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("remote request %s failed with status %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("remote request %s failed: %s", e.Endpoint, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// MalformedResponseError is returned when the store replies with a body the
// client cannot interpret
type MalformedResponseError struct {
	Endpoint string
	Err      error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from %s: %v", e.Endpoint, e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// MappingError is returned when a field mapping rule cannot be applied
type MappingError struct {
	Rule      string
	Direction string
	Err       error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping rule %q (%s) failed: %v", e.Rule, e.Direction, e.Err)
}

func (e *MappingError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a remote not-found
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsSyncDisabled reports whether err is a clean sync-disabled skip
func IsSyncDisabled(err error) bool {
	var sd *SyncDisabledError
	return errors.As(err, &sd)
}

// IsValidation reports whether err is a remote validation rejection
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
