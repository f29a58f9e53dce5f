package session

import (
	"errors"
	"fmt"
)

// Failure taxonomy. Every remote failure is classified into one of these at
// the orchestrator boundary and recorded on the resource; none of them is
// ever returned from a getter.
var (
	ErrAuthFailure          = errors.New("session: authorization failed")
	ErrNetworkFailure       = errors.New("session: remote call failed")
	ErrNotConnected         = errors.New("session: not connected")
	ErrTokenCreationFailure = errors.New("session: token creation failed")
)

// errConnectionChanged is reported to one-shot callbacks whose request was
// issued under a connection that has since been replaced or dropped.
var errConnectionChanged = fmt.Errorf("%w: connection changed while the request was in flight", ErrNotConnected)

// classify wraps err with the taxonomy sentinel that fits kind. Errors that
// already carry a sentinel are returned unchanged.
func classify(kind Kind, err error) error {
	if err == nil {
		return nil
	}

	for _, sentinel := range []error{ErrAuthFailure, ErrNetworkFailure, ErrNotConnected, ErrTokenCreationFailure} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	switch kind {
	case KindConnection:
		return fmt.Errorf("%w: %w", ErrAuthFailure, err)
	case KindAssetAccessToken:
		return fmt.Errorf("%w: %w", ErrTokenCreationFailure, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrNetworkFailure, kind, err)
	}
}
