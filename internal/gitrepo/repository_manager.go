package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/temirov/gklean/internal/execshell"
)

const (
	gitRevParseSubcommandConstant        = "rev-parse"
	gitWorkTreeFlagConstant              = "--is-inside-work-tree"
	gitShowTopLevelFlagConstant          = "--show-toplevel"
	gitSymbolicRefSubcommandConstant     = "symbolic-ref"
	gitQuietFlagConstant                 = "--quiet"
	gitShortFlagConstant                 = "--short"
	gitHeadReferenceConstant             = "HEAD"
	gitConfigSubcommandConstant          = "config"
	gitUserNameKeyConstant               = "user.name"
	gitTrueOutputConstant                = "true"
	gitTerminalPromptVariableConstant    = "GIT_TERMINAL_PROMPT"
	gitTerminalPromptDisabledConstant    = "0"
	unknownUserNameConstant              = "unknown"
	executorNotConfiguredMessageConstant = "git executor not configured"
	notVersionControlledMessageConstant  = "not a version-controlled directory"
	detachedHeadMessageConstant          = "HEAD is detached; check out a branch first"
	emptyRepositoryRootMessageConstant   = "git reported an empty repository root"
	repositoryPathErrorTemplateConstant  = "%s: %w"
)

// ErrExecutorNotConfigured indicates NewRepositoryManager received a nil executor.
var ErrExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)

// ErrNotVersionControlled indicates the path is not inside a git work tree.
var ErrNotVersionControlled = errors.New(notVersionControlledMessageConstant)

// ErrDetachedHead indicates the work tree has no current branch.
var ErrDetachedHead = errors.New(detachedHeadMessageConstant)

// ErrEmptyRepositoryRoot indicates git succeeded but printed no root.
var ErrEmptyRepositoryRoot = errors.New(emptyRepositoryRootMessageConstant)

// GitExecutor exposes the subset of shell execution used by the repository manager.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// RepositoryManager queries repository state through git.
type RepositoryManager struct {
	executor GitExecutor
}

// NewRepositoryManager constructs a RepositoryManager.
func NewRepositoryManager(executor GitExecutor) (*RepositoryManager, error) {
	if executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	return &RepositoryManager{executor: executor}, nil
}

// CurrentBranch returns the short name of the checked-out branch. It fails with
// ErrNotVersionControlled outside a work tree and ErrDetachedHead when HEAD does
// not point at a branch.
func (manager *RepositoryManager) CurrentBranch(executionContext context.Context, repositoryPath string) (string, error) {
	workTreeResult, workTreeError := manager.runGit(executionContext, repositoryPath, gitRevParseSubcommandConstant, gitWorkTreeFlagConstant)
	if workTreeError != nil {
		return "", fmt.Errorf(repositoryPathErrorTemplateConstant, describePath(repositoryPath), errors.Join(ErrNotVersionControlled, workTreeError))
	}
	if strings.TrimSpace(workTreeResult.StandardOutput) != gitTrueOutputConstant {
		return "", fmt.Errorf(repositoryPathErrorTemplateConstant, describePath(repositoryPath), ErrNotVersionControlled)
	}

	branchResult, branchError := manager.runGit(executionContext, repositoryPath, gitSymbolicRefSubcommandConstant, gitQuietFlagConstant, gitShortFlagConstant, gitHeadReferenceConstant)
	if branchError != nil {
		return "", fmt.Errorf(repositoryPathErrorTemplateConstant, describePath(repositoryPath), errors.Join(ErrDetachedHead, branchError))
	}

	branchName := strings.TrimSpace(branchResult.StandardOutput)
	if len(branchName) == 0 {
		return "", fmt.Errorf(repositoryPathErrorTemplateConstant, describePath(repositoryPath), ErrDetachedHead)
	}
	return branchName, nil
}

// RepositoryRoot returns the top-level directory of the work tree containing repositoryPath.
func (manager *RepositoryManager) RepositoryRoot(executionContext context.Context, repositoryPath string) (string, error) {
	rootResult, rootError := manager.runGit(executionContext, repositoryPath, gitRevParseSubcommandConstant, gitShowTopLevelFlagConstant)
	if rootError != nil {
		return "", fmt.Errorf(repositoryPathErrorTemplateConstant, describePath(repositoryPath), errors.Join(ErrNotVersionControlled, rootError))
	}

	repositoryRoot := strings.TrimSpace(rootResult.StandardOutput)
	if len(repositoryRoot) == 0 {
		return "", fmt.Errorf(repositoryPathErrorTemplateConstant, describePath(repositoryPath), ErrEmptyRepositoryRoot)
	}
	return repositoryRoot, nil
}

// CurrentUserName returns git's user.name, or "unknown" when it is unset or git fails.
func (manager *RepositoryManager) CurrentUserName(executionContext context.Context, repositoryPath string) string {
	userResult, userError := manager.runGit(executionContext, repositoryPath, gitConfigSubcommandConstant, gitUserNameKeyConstant)
	if userError != nil {
		return unknownUserNameConstant
	}
	userName := strings.TrimSpace(userResult.StandardOutput)
	if len(userName) == 0 {
		return unknownUserNameConstant
	}
	return userName
}

func (manager *RepositoryManager) runGit(executionContext context.Context, repositoryPath string, arguments ...string) (execshell.ExecutionResult, error) {
	return manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:            arguments,
		WorkingDirectory:     repositoryPath,
		EnvironmentVariables: map[string]string{gitTerminalPromptVariableConstant: gitTerminalPromptDisabledConstant},
	})
}

func describePath(repositoryPath string) string {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return "."
	}
	return trimmedPath
}
