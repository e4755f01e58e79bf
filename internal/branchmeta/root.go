package branchmeta

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

const (
	// MetadataDirectoryNameConstant is the hidden directory created under the storage root.
	MetadataDirectoryNameConstant = ".gklean"
	// MetadataFileNameConstant is the metadata file kept inside the hidden directory.
	MetadataFileNameConstant         = "branch_meta.json"
	gitDirectoryEntryNameConstant    = ".git"
	currentDirectoryFallbackConstant = "."
)

// RepositoryRootLocator finds the root of the working tree enclosing a directory.
type RepositoryRootLocator interface {
	RepositoryRoot(executionContext context.Context, workingDirectory string) (string, error)
}

// ResolveStorageRoot returns the directory the metadata file is anchored under.
// The locator is consulted first, then the filesystem is walked upward looking
// for a .git entry, and finally the working directory itself is used.
func ResolveStorageRoot(executionContext context.Context, locator RepositoryRootLocator, workingDirectory string) string {
	resolvedWorkingDirectory := resolveWorkingDirectory(workingDirectory)

	if locator != nil {
		repositoryRoot, locateError := locator.RepositoryRoot(executionContext, resolvedWorkingDirectory)
		trimmedRepositoryRoot := strings.TrimSpace(repositoryRoot)
		if locateError == nil && len(trimmedRepositoryRoot) > 0 {
			return filepath.Clean(trimmedRepositoryRoot)
		}
	}

	if repositoryRoot, found := findEnclosingGitRoot(resolvedWorkingDirectory); found {
		return repositoryRoot
	}

	return resolvedWorkingDirectory
}

// MetadataDirectoryPath returns the hidden metadata directory under root.
func MetadataDirectoryPath(root string) string {
	return filepath.Join(root, MetadataDirectoryNameConstant)
}

// MetadataFilePath returns the metadata file path under root.
func MetadataFilePath(root string) string {
	return filepath.Join(MetadataDirectoryPath(root), MetadataFileNameConstant)
}

func resolveWorkingDirectory(workingDirectory string) string {
	trimmedWorkingDirectory := strings.TrimSpace(workingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		currentDirectory, currentDirectoryError := os.Getwd()
		if currentDirectoryError != nil {
			return currentDirectoryFallbackConstant
		}
		trimmedWorkingDirectory = currentDirectory
	}

	absoluteWorkingDirectory, absoluteError := filepath.Abs(trimmedWorkingDirectory)
	if absoluteError != nil {
		return filepath.Clean(trimmedWorkingDirectory)
	}
	return absoluteWorkingDirectory
}

func findEnclosingGitRoot(startDirectory string) (string, bool) {
	candidateDirectory := startDirectory
	for {
		if _, statError := os.Stat(filepath.Join(candidateDirectory, gitDirectoryEntryNameConstant)); statError == nil {
			return candidateDirectory, true
		}

		parentDirectory := filepath.Dir(candidateDirectory)
		if parentDirectory == candidateDirectory {
			return "", false
		}
		candidateDirectory = parentDirectory
	}
}
