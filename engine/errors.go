package engine

import "errors"

// Error kinds, by cause, per spec §7. The engine never converts one kind
// into another and never retries; these are wrapped with %w at the call
// site so errors.Is keeps working through the wrapping.
var (
	// ErrConfig: verify_percent out of range, malformed duration string,
	// or any other construction-time misconfiguration. Fatal, raised at
	// New or at first use of an Option.
	ErrConfig = errors.New("qcache: config error")

	// ErrBackend: a storage read/write failure, propagated from
	// synchronous paths, swallowed from background ones.
	ErrBackend = errors.New("qcache: backend error")

	// ErrLoader: the user-supplied loader returned an error. Recoverable
	// via grace; otherwise propagated unchanged (not wrapped further).
	ErrLoader = errors.New("qcache: loader error")
)
