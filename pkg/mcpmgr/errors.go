package mcpmgr

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a server could not be connected.
type FailureKind string

const (
	// KindSpawn means the local process could not be started.
	KindSpawn FailureKind = "spawn_error"
	// KindConnect covers network and handshake failures after any fallback
	// has been exhausted.
	KindConnect FailureKind = "connect_error"
	// KindAuth means pre-validation observed a credential rejection. No
	// transport was opened.
	KindAuth FailureKind = "auth_error"
	// KindConfig means the descriptor itself was invalid.
	KindConfig FailureKind = "config_error"
	// KindRelease marks an error collected while tearing resources down.
	KindRelease FailureKind = "release_error"
)

// Sentinels usable with errors.Is against *ConnectionError and *ReleaseError.
var (
	ErrSpawn   = errors.New("mcpmgr: spawn failed")
	ErrConnect = errors.New("mcpmgr: connect failed")
	ErrAuth    = errors.New("mcpmgr: authentication rejected")
	ErrConfig  = errors.New("mcpmgr: invalid server config")
	ErrRelease = errors.New("mcpmgr: release failed")
)

func (k FailureKind) sentinel() error {
	switch k {
	case KindSpawn:
		return ErrSpawn
	case KindConnect:
		return ErrConnect
	case KindAuth:
		return ErrAuth
	case KindConfig:
		return ErrConfig
	case KindRelease:
		return ErrRelease
	default:
		return nil
	}
}

// ConnectionError is the typed failure recorded for one server.
type ConnectionError struct {
	Kind   FailureKind
	Server string
	// Status carries the rejecting HTTP status for auth failures, when known.
	Status int
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("mcpmgr: server %q: %s", e.Server, e.Kind)
	}
	return fmt.Sprintf("mcpmgr: server %q: %s: %v", e.Server, e.Kind, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Is matches the sentinel that corresponds to e.Kind.
func (e *ConnectionError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func newConnectionError(kind FailureKind, server string, err error) *ConnectionError {
	ce := &ConnectionError{Kind: kind, Server: server, Err: err}
	var af *AuthFailure
	if errors.As(err, &af) {
		ce.Status = af.Status
	}
	return ce
}

// ReleaseError is one failure collected while running a ReleaseHandle.
type ReleaseError struct {
	Server   string
	Resource string
	Err      error
}

func (e *ReleaseError) Error() string {
	return fmt.Sprintf("mcpmgr: server %q: release %s: %v", e.Server, e.Resource, e.Err)
}

func (e *ReleaseError) Unwrap() error { return e.Err }

func (e *ReleaseError) Is(target error) bool { return target == ErrRelease }

// StatusError attaches an HTTP status observed on the wire to a transport
// error. Transports record it whenever the underlying client exposes it.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("http status %d", e.StatusCode)
	}
	return fmt.Sprintf("%v (http status %d)", e.Err, e.StatusCode)
}

func (e *StatusError) Unwrap() error { return e.Err }

// AuthFailure is returned by a PreValidator when the server rejected the
// supplied credentials.
type AuthFailure struct {
	Server string
	Status int
	Reason string
}

func (e *AuthFailure) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("server %q rejected credentials (status %d): %s", e.Server, e.Status, e.Reason)
	}
	return fmt.Sprintf("server %q rejected credentials: %s", e.Server, e.Reason)
}
