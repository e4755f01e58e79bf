package utils

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	homeDirectorySymbolConstant = "~"
)

// HomeDirectoryProvider resolves the current user's home directory.
type HomeDirectoryProvider func() (string, error)

// ExpandHomeDirectory replaces a leading "~" or "~/" with the home directory reported by
// provider. A nil provider uses os.UserHomeDir. Paths are returned unchanged when the
// home directory cannot be determined or the path names another user's home.
func ExpandHomeDirectory(candidatePath string, provider HomeDirectoryProvider) string {
	trimmedPath := strings.TrimSpace(candidatePath)
	if !strings.HasPrefix(trimmedPath, homeDirectorySymbolConstant) {
		return candidatePath
	}

	remainder := strings.TrimPrefix(trimmedPath, homeDirectorySymbolConstant)
	if len(remainder) > 0 && remainder[0] != '/' && remainder[0] != os.PathSeparator {
		return candidatePath
	}

	if provider == nil {
		provider = os.UserHomeDir
	}
	homeDirectory, homeError := provider()
	if homeError != nil || len(strings.TrimSpace(homeDirectory)) == 0 {
		return candidatePath
	}

	return filepath.Join(homeDirectory, remainder)
}
