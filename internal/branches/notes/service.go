package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/gklean/internal/branchmeta"
)

const (
	branchResolverMissingMessageConstant  = "branch resolver not configured"
	branchResolutionErrorTemplateConstant = "unable to determine current branch: %w"
	openStoreErrorTemplateConstant        = "unable to open branch metadata: %w"
	setDescriptionErrorTemplateConstant   = "unable to save description for %s: %w"
	setStatusErrorTemplateConstant        = "unable to set status for %s: %w"
	addTodoErrorTemplateConstant          = "unable to add todo to %s: %w"
	completeTodoErrorTemplateConstant     = "unable to complete todo on %s: %w"
	logFieldBranchConstant                = "branch"
	logFieldStorageRootConstant           = "storage_root"
	storeOpenedMessageConstant            = "branch metadata store opened"
)

// ErrBranchResolverNotConfigured indicates NewService was called without a BranchResolver.
var ErrBranchResolverNotConfigured = errors.New(branchResolverMissingMessageConstant)

// BranchResolver reports the branch checked out in a working directory.
type BranchResolver interface {
	CurrentBranch(executionContext context.Context, repositoryPath string) (string, error)
}

// IdentityProvider reports the user recorded as a branch owner.
type IdentityProvider interface {
	CurrentUserName(executionContext context.Context, repositoryPath string) string
}

// ServiceDependencies enumerates collaborators required by the service.
type ServiceDependencies struct {
	BranchResolver   BranchResolver
	RootLocator      branchmeta.RepositoryRootLocator
	IdentityProvider IdentityProvider
	Logger           *zap.Logger
	Clock            branchmeta.Clock
	LockTimeout      time.Duration
	WorkingDirectory string
}

// BranchResult identifies the branch an operation was applied to.
type BranchResult struct {
	BranchName  string
	StorageRoot string
}

// TodoResult reports the todo created or completed by an operation.
type TodoResult struct {
	BranchResult
	Todo branchmeta.TodoItem
}

// StatusResult reports a status change.
type StatusResult struct {
	BranchResult
	Status             branchmeta.Status
	DescriptionUpdated bool
}

// ContextResult carries the stored record for the current branch and its rendering.
type ContextResult struct {
	BranchResult
	Record   branchmeta.BranchRecord
	Present  bool
	Rendered string
}

// Service applies branch notes operations to the current branch.
type Service struct {
	branchResolver   BranchResolver
	rootLocator      branchmeta.RepositoryRootLocator
	identityProvider IdentityProvider
	logger           *zap.Logger
	clock            branchmeta.Clock
	lockTimeout      time.Duration
	workingDirectory string
}

// NewService constructs a Service from the provided dependencies.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.BranchResolver == nil {
		return nil, ErrBranchResolverNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		branchResolver:   dependencies.BranchResolver,
		rootLocator:      dependencies.RootLocator,
		identityProvider: dependencies.IdentityProvider,
		logger:           logger,
		clock:            dependencies.Clock,
		lockTimeout:      dependencies.LockTimeout,
		workingDirectory: dependencies.WorkingDirectory,
	}, nil
}

// Note replaces the description of the current branch.
func (service *Service) Note(executionContext context.Context, text string) (BranchResult, error) {
	session, sessionError := service.openSession(executionContext)
	if sessionError != nil {
		return BranchResult{}, sessionError
	}

	if descriptionError := session.store.SetDescription(session.result.BranchName, strings.TrimSpace(text)); descriptionError != nil {
		return BranchResult{}, fmt.Errorf(setDescriptionErrorTemplateConstant, session.result.BranchName, descriptionError)
	}
	return session.result, nil
}

// AddTodo appends a pending todo to the current branch.
func (service *Service) AddTodo(executionContext context.Context, text string) (TodoResult, error) {
	if len(strings.TrimSpace(text)) == 0 {
		return TodoResult{}, branchmeta.ErrTodoTextRequired
	}

	session, sessionError := service.openSession(executionContext)
	if sessionError != nil {
		return TodoResult{}, sessionError
	}

	createdTodo, addError := session.store.AddTodo(session.result.BranchName, text)
	if addError != nil {
		return TodoResult{}, fmt.Errorf(addTodoErrorTemplateConstant, session.result.BranchName, addError)
	}
	return TodoResult{BranchResult: session.result, Todo: createdTodo}, nil
}

// CompleteTodo marks the todo with todoID on the current branch as done.
func (service *Service) CompleteTodo(executionContext context.Context, todoID int64) (TodoResult, error) {
	session, sessionError := service.openSession(executionContext)
	if sessionError != nil {
		return TodoResult{}, sessionError
	}

	completedTodo, completeError := session.store.CompleteTodo(session.result.BranchName, todoID)
	if completeError != nil {
		return TodoResult{}, fmt.Errorf(completeTodoErrorTemplateConstant, session.result.BranchName, completeError)
	}
	return TodoResult{BranchResult: session.result, Todo: completedTodo}, nil
}

// SetStatus validates rawStatus and records it on the current branch. A non-empty
// description also replaces the branch description. Invalid statuses are rejected
// before git is consulted or the store is opened.
func (service *Service) SetStatus(executionContext context.Context, rawStatus string, description string) (StatusResult, error) {
	status, parseError := branchmeta.ParseStatus(rawStatus)
	if parseError != nil {
		return StatusResult{}, parseError
	}

	session, sessionError := service.openSession(executionContext)
	if sessionError != nil {
		return StatusResult{}, sessionError
	}

	trimmedDescription := strings.TrimSpace(description)
	descriptionUpdated := len(trimmedDescription) > 0
	updateError := session.store.Update(session.result.BranchName, func(record *branchmeta.BranchRecord) error {
		record.Status = status
		if descriptionUpdated {
			record.Description = trimmedDescription
		}
		return nil
	})
	if updateError != nil {
		return StatusResult{}, fmt.Errorf(setStatusErrorTemplateConstant, session.result.BranchName, updateError)
	}

	return StatusResult{BranchResult: session.result, Status: status, DescriptionUpdated: descriptionUpdated}, nil
}

// Context loads the record for the current branch and renders it. Present is false
// and Rendered is empty when the branch has never been annotated.
func (service *Service) Context(executionContext context.Context) (ContextResult, error) {
	session, sessionError := service.openSession(executionContext)
	if sessionError != nil {
		return ContextResult{}, sessionError
	}

	record, present := session.store.Get(session.result.BranchName)
	return ContextResult{
		BranchResult: session.result,
		Record:       record,
		Present:      present,
		Rendered:     branchmeta.RenderContext(session.result.BranchName, record, present),
	}, nil
}

type storeSession struct {
	store  *branchmeta.Store
	result BranchResult
}

// openSession resolves the branch before touching the filesystem so a failed
// lookup leaves no metadata behind.
func (service *Service) openSession(executionContext context.Context) (storeSession, error) {
	branchName, branchError := service.branchResolver.CurrentBranch(executionContext, service.workingDirectory)
	if branchError != nil {
		return storeSession{}, fmt.Errorf(branchResolutionErrorTemplateConstant, branchError)
	}

	storageRoot := branchmeta.ResolveStorageRoot(executionContext, service.rootLocator, service.workingDirectory)
	store, openError := branchmeta.Open(storageRoot, branchmeta.StoreDependencies{
		Logger:        service.logger,
		Clock:         service.clock,
		OwnerProvider: service.ownerProvider(executionContext, storageRoot),
		LockTimeout:   service.lockTimeout,
	})
	if openError != nil {
		return storeSession{}, fmt.Errorf(openStoreErrorTemplateConstant, openError)
	}

	service.logger.Debug(storeOpenedMessageConstant, zap.String(logFieldBranchConstant, branchName), zap.String(logFieldStorageRootConstant, storageRoot))
	return storeSession{store: store, result: BranchResult{BranchName: branchName, StorageRoot: storageRoot}}, nil
}

func (service *Service) ownerProvider(executionContext context.Context, storageRoot string) branchmeta.OwnerProvider {
	if service.identityProvider == nil {
		return nil
	}
	return func() string {
		return service.identityProvider.CurrentUserName(executionContext, storageRoot)
	}
}
