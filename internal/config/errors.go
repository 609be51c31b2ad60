package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfig marks a single hard configuration failure (unreadable file,
// malformed YAML, bad env var), matching core/config.py's ConfigError.
var ErrConfig = errors.New("config: invalid configuration")

// ValidationError collects every validation failure found at once, so an
// operator sees the full list instead of fixing one field per restart —
// mirrors _validate_config's accumulate-then-raise behavior.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %d validation error(s): %s", len(e.Errors), strings.Join(e.Errors, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrConfig }
