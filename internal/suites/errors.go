package suites

import "errors"

// ErrConfig marks a suite-registry misconfiguration: unknown or retired
// token, unknown algorithm name, a gated suite requested without its flag.
var ErrConfig = errors.New("suites: config error")

// ErrNotFound marks a suite ID absent from the registry entirely.
var ErrNotFound = errors.New("suites: not found")

// ErrUnavailable marks a suite whose algorithm backend failed to resolve
// at runtime (e.g. circl scheme not registered under the expected name).
var ErrUnavailable = errors.New("suites: backend unavailable")
