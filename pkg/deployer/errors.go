package deployer

import "errors"

var (
	// ErrNotSupported is returned by lifecycle operations a deployer flavor
	// deliberately rejects. It is returned before any platform call is made.
	ErrNotSupported = errors.New("operation not supported by this model deployer")

	// ErrTimedOut is returned when a service does not reach the desired
	// state within the caller's timeout. It is distinct from provisioning
	// errors so callers can tell a slow rollout from a rejected one.
	ErrTimedOut = errors.New("timed out waiting for model server")
)
