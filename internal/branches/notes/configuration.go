package notes

import (
	"time"

	"github.com/temirov/gklean/internal/branchmeta"
)

// CommandConfiguration captures configuration values for the branch notes commands.
type CommandConfiguration struct {
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

// DefaultCommandConfiguration provides baseline configuration values for branch notes.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		LockTimeout: branchmeta.DefaultLockTimeout,
	}
}

// Sanitize replaces unusable values with defaults.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	sanitized := configuration
	if sanitized.LockTimeout <= 0 {
		sanitized.LockTimeout = branchmeta.DefaultLockTimeout
	}
	return sanitized
}
