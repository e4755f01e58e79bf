package branchmeta

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"
)

const (
	// UnknownOwnerConstant is recorded when the current user cannot be determined.
	UnknownOwnerConstant = "unknown"

	emptyMappingContentConstant          = "{}"
	malformedBackupSuffixConstant        = ".bak"
	metadataDirectoryPermissionsConstant = 0o755
	metadataFilePermissionsConstant      = 0o644
	jsonIndentPrefixConstant             = ""
	jsonIndentValueConstant              = "  "
	storageRootRequiredMessageConstant   = "storage root must be provided"
	branchNameRequiredMessageConstant    = "branch name must be provided"
	todoTextRequiredMessageConstant      = "todo text must not be empty"
	todoNotFoundMessageConstant          = "todo item not found"
	todoNotFoundTemplateConstant         = "%w: %d on branch %s"
	createDirectoryErrorTemplateConstant = "failed to create metadata directory %s: %w"
	inspectFileErrorTemplateConstant     = "failed to inspect metadata file %s: %w"
	initializeFileErrorTemplateConstant  = "failed to initialize metadata file %s: %w"
	readFileErrorTemplateConstant        = "failed to read metadata file %s: %w"
	encodeRecordsErrorTemplateConstant   = "failed to encode branch metadata: %w"
	writeFileErrorTemplateConstant       = "failed to write metadata file %s: %w"
	malformedMetadataMessageConstant     = "metadata file is malformed; continuing with an empty store"
	malformedBackupFailedMessageConstant = "unable to preserve malformed metadata file"
	invalidStoredStatusMessageConstant   = "stored status is not supported; resetting to default"
	lockReleaseFailedMessageConstant     = "unable to release metadata lock"
	recordUpdatedMessageConstant         = "branch metadata updated"
	recordCreatedMessageConstant         = "branch metadata record created"
	metadataPersistedMessageConstant     = "branch metadata persisted"
	logFieldPathConstant                 = "path"
	logFieldBackupPathConstant           = "backup_path"
	logFieldBranchConstant               = "branch"
	logFieldStatusConstant               = "status"
	logFieldRecordCountConstant          = "record_count"
)

// ErrStorageRootRequired indicates Open was called without a root directory.
var ErrStorageRootRequired = errors.New(storageRootRequiredMessageConstant)

// ErrBranchNameRequired indicates an empty branch name was supplied.
var ErrBranchNameRequired = errors.New(branchNameRequiredMessageConstant)

// ErrTodoTextRequired indicates an empty todo text was supplied.
var ErrTodoTextRequired = errors.New(todoTextRequiredMessageConstant)

// ErrTodoNotFound indicates the referenced todo item does not exist on the branch.
var ErrTodoNotFound = errors.New(todoNotFoundMessageConstant)

// Clock abstracts time acquisition for deterministic testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time source.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// OwnerProvider yields the identity recorded as the owner of newly touched branches.
type OwnerProvider func() string

// StoreDependencies enumerates collaborators used by the store.
type StoreDependencies struct {
	Logger        *zap.Logger
	Clock         Clock
	OwnerProvider OwnerProvider
	LockTimeout   time.Duration
}

// Store holds the branch-keyed metadata mapping backed by a JSON file.
//
// Every mutation takes the advisory lock, reloads the file, applies the
// change, and atomically replaces the file before releasing the lock.
type Store struct {
	root          string
	filePath      string
	lockPath      string
	logger        *zap.Logger
	clock         Clock
	ownerProvider OwnerProvider
	lockTimeout   time.Duration
	records       map[string]BranchRecord
}

// Open prepares the metadata directory and file under root and loads the current mapping.
func Open(root string, dependencies StoreDependencies) (*Store, error) {
	trimmedRoot := strings.TrimSpace(root)
	if len(trimmedRoot) == 0 {
		return nil, ErrStorageRootRequired
	}

	store := &Store{
		root:          trimmedRoot,
		filePath:      MetadataFilePath(trimmedRoot),
		lockPath:      MetadataFilePath(trimmedRoot) + lockFileSuffixConstant,
		logger:        dependencies.Logger,
		clock:         dependencies.Clock,
		ownerProvider: dependencies.OwnerProvider,
		lockTimeout:   dependencies.LockTimeout,
	}
	if store.logger == nil {
		store.logger = zap.NewNop()
	}
	if store.clock == nil {
		store.clock = SystemClock{}
	}
	if store.lockTimeout <= 0 {
		store.lockTimeout = DefaultLockTimeout
	}

	if ensureError := store.ensureStorage(); ensureError != nil {
		return nil, ensureError
	}

	records, readError := store.readRecords()
	if readError != nil {
		return nil, readError
	}
	store.records = records

	return store, nil
}

// Path returns the metadata file path.
func (store *Store) Path() string {
	return store.filePath
}

// Get returns the record for branchName without creating or persisting anything.
func (store *Store) Get(branchName string) (BranchRecord, bool) {
	record, exists := store.records[strings.TrimSpace(branchName)]
	if !exists {
		return BranchRecord{}, false
	}
	return record.clone(), true
}

// Branches lists branch names with a record, sorted lexically.
func (store *Store) Branches() []string {
	branchNames := make([]string, 0, len(store.records))
	for branchName := range store.records {
		branchNames = append(branchNames, branchName)
	}
	sort.Strings(branchNames)
	return branchNames
}

// SetDescription replaces the free-text description of the branch.
func (store *Store) SetDescription(branchName string, description string) error {
	return store.mutate(branchName, nil, func(record *BranchRecord, _ time.Time) error {
		record.Description = description
		return nil
	})
}

// SetStatus records a new status for the branch. Unsupported values are rejected before any I/O.
func (store *Store) SetStatus(branchName string, status Status) error {
	if !status.Valid() {
		return InvalidStatusError{Value: string(status)}
	}

	return store.mutate(branchName, nil, func(record *BranchRecord, _ time.Time) error {
		record.Status = status
		return nil
	})
}

// AddTodo appends a pending todo item to the branch and returns it.
func (store *Store) AddTodo(branchName string, text string) (TodoItem, error) {
	trimmedText := strings.TrimSpace(text)
	if len(trimmedText) == 0 {
		return TodoItem{}, ErrTodoTextRequired
	}

	var createdTodo TodoItem
	mutationError := store.mutate(branchName, nil, func(record *BranchRecord, now time.Time) error {
		createdTodo = TodoItem{
			ID:        record.nextTodoID(now.UnixMilli()),
			Text:      trimmedText,
			Done:      false,
			CreatedAt: now.Unix(),
		}
		record.Todos = append(record.Todos, createdTodo)
		return nil
	})
	if mutationError != nil {
		return TodoItem{}, mutationError
	}

	return createdTodo, nil
}

// CompleteTodo marks the todo identified by todoID as done. Nothing is written when
// the branch has no record or no such todo.
func (store *Store) CompleteTodo(branchName string, todoID int64) (TodoItem, error) {
	notFoundError := fmt.Errorf(todoNotFoundTemplateConstant, ErrTodoNotFound, todoID, strings.TrimSpace(branchName))

	var completedTodo TodoItem
	mutationError := store.mutate(branchName, notFoundError, func(record *BranchRecord, _ time.Time) error {
		for todoIndex := range record.Todos {
			if record.Todos[todoIndex].ID != todoID {
				continue
			}
			record.Todos[todoIndex].Done = true
			completedTodo = record.Todos[todoIndex]
			return nil
		}
		return notFoundError
	})
	if mutationError != nil {
		return TodoItem{}, mutationError
	}

	return completedTodo, nil
}

// Touch creates the record if needed and refreshes last_touched and a missing owner.
func (store *Store) Touch(branchName string) error {
	return store.mutate(branchName, nil, func(*BranchRecord, time.Time) error {
		return nil
	})
}

// Update applies change to the branch record inside a single locked
// read-modify-write cycle, creating the record when absent. Nothing is written
// when change fails or leaves an unsupported status behind.
func (store *Store) Update(branchName string, change func(record *BranchRecord) error) error {
	return store.mutate(branchName, nil, func(record *BranchRecord, _ time.Time) error {
		if change == nil {
			return nil
		}
		if changeError := change(record); changeError != nil {
			return changeError
		}
		if !record.Status.Valid() {
			return InvalidStatusError{Value: string(record.Status)}
		}
		return nil
	})
}

// Persist serializes the in-memory mapping and atomically replaces the metadata file.
func (store *Store) Persist() error {
	return store.withLock(func() error {
		return store.writeRecords(store.records)
	})
}

// mutate runs apply against a fresh copy of the branch record read under the lock.
// A nil missingRecordError creates absent records lazily; otherwise it is returned for them.
func (store *Store) mutate(branchName string, missingRecordError error, apply func(record *BranchRecord, now time.Time) error) error {
	trimmedBranchName := strings.TrimSpace(branchName)
	if len(trimmedBranchName) == 0 {
		return ErrBranchNameRequired
	}

	return store.withLock(func() error {
		currentRecords, readError := store.readRecords()
		if readError != nil {
			return readError
		}
		store.records = currentRecords

		now := store.clock.Now()
		record, recordExists := currentRecords[trimmedBranchName]
		switch {
		case recordExists:
			record = record.clone()
		case missingRecordError != nil:
			return missingRecordError
		default:
			record = store.newRecord(now)
			store.logger.Debug(recordCreatedMessageConstant, zap.String(logFieldBranchConstant, trimmedBranchName))
		}

		if applyError := apply(&record, now); applyError != nil {
			return applyError
		}
		store.touchRecord(&record, now)

		updatedRecords := make(map[string]BranchRecord, len(currentRecords)+1)
		for existingBranchName, existingRecord := range currentRecords {
			updatedRecords[existingBranchName] = existingRecord
		}
		updatedRecords[trimmedBranchName] = record

		if writeError := store.writeRecords(updatedRecords); writeError != nil {
			return writeError
		}
		store.records = updatedRecords

		store.logger.Debug(
			recordUpdatedMessageConstant,
			zap.String(logFieldBranchConstant, trimmedBranchName),
			zap.String(logFieldStatusConstant, string(record.Status)),
		)
		return nil
	})
}

func (store *Store) newRecord(now time.Time) BranchRecord {
	return BranchRecord{
		CreatedAt:   now.Unix(),
		Owner:       store.resolveOwner(),
		Status:      StatusWorkInProgress,
		Description: "",
		LastTouched: now.Unix(),
		Todos:       []TodoItem{},
	}
}

func (store *Store) touchRecord(record *BranchRecord, now time.Time) {
	record.LastTouched = now.Unix()
	if record.LastTouched < record.CreatedAt {
		record.LastTouched = record.CreatedAt
	}
	if len(strings.TrimSpace(record.Owner)) == 0 {
		record.Owner = store.resolveOwner()
	}
}

func (store *Store) resolveOwner() string {
	if store.ownerProvider == nil {
		return UnknownOwnerConstant
	}
	owner := strings.TrimSpace(store.ownerProvider())
	if len(owner) == 0 {
		return UnknownOwnerConstant
	}
	return owner
}

func (store *Store) withLock(operation func() error) error {
	lock, lockError := acquireFileLock(store.lockPath, store.lockTimeout)
	if lockError != nil {
		return lockError
	}
	defer func() {
		if releaseError := lock.release(); releaseError != nil {
			store.logger.Warn(lockReleaseFailedMessageConstant, zap.String(logFieldPathConstant, store.lockPath), zap.Error(releaseError))
		}
	}()

	return operation()
}

func (store *Store) ensureStorage() error {
	directoryPath := MetadataDirectoryPath(store.root)
	if mkdirError := os.MkdirAll(directoryPath, metadataDirectoryPermissionsConstant); mkdirError != nil {
		return fmt.Errorf(createDirectoryErrorTemplateConstant, directoryPath, mkdirError)
	}

	_, statError := os.Stat(store.filePath)
	if statError == nil {
		return nil
	}
	if !errors.Is(statError, os.ErrNotExist) {
		return fmt.Errorf(inspectFileErrorTemplateConstant, store.filePath, statError)
	}

	if writeError := atomic.WriteFile(store.filePath, strings.NewReader(emptyMappingContentConstant)); writeError != nil {
		return fmt.Errorf(initializeFileErrorTemplateConstant, store.filePath, writeError)
	}
	if chmodError := os.Chmod(store.filePath, metadataFilePermissionsConstant); chmodError != nil {
		return fmt.Errorf(initializeFileErrorTemplateConstant, store.filePath, chmodError)
	}

	return nil
}

func (store *Store) readRecords() (map[string]BranchRecord, error) {
	content, readError := os.ReadFile(store.filePath)
	if readError != nil {
		return nil, fmt.Errorf(readFileErrorTemplateConstant, store.filePath, readError)
	}
	return store.decodeRecords(content), nil
}

func (store *Store) decodeRecords(content []byte) map[string]BranchRecord {
	var decodedRecords map[string]BranchRecord
	if decodeError := json.Unmarshal(content, &decodedRecords); decodeError != nil {
		store.preserveMalformedContent(content, decodeError)
		return map[string]BranchRecord{}
	}
	if decodedRecords == nil {
		return map[string]BranchRecord{}
	}

	for branchName, record := range decodedRecords {
		if !record.Status.Valid() {
			store.logger.Warn(
				invalidStoredStatusMessageConstant,
				zap.String(logFieldBranchConstant, branchName),
				zap.String(logFieldStatusConstant, string(record.Status)),
			)
			record.Status = StatusWorkInProgress
		}
		if record.Todos == nil {
			record.Todos = []TodoItem{}
		}
		if record.LastTouched < record.CreatedAt {
			record.LastTouched = record.CreatedAt
		}
		decodedRecords[branchName] = record
	}

	return decodedRecords
}

func (store *Store) preserveMalformedContent(content []byte, decodeError error) {
	backupPath := store.filePath + malformedBackupSuffixConstant
	store.logger.Warn(
		malformedMetadataMessageConstant,
		zap.String(logFieldPathConstant, store.filePath),
		zap.String(logFieldBackupPathConstant, backupPath),
		zap.Error(decodeError),
	)

	if backupError := atomic.WriteFile(backupPath, bytes.NewReader(content)); backupError != nil {
		store.logger.Warn(malformedBackupFailedMessageConstant, zap.String(logFieldBackupPathConstant, backupPath), zap.Error(backupError))
	}
}

func (store *Store) writeRecords(records map[string]BranchRecord) error {
	if records == nil {
		records = map[string]BranchRecord{}
	}

	encodedRecords, encodeError := json.MarshalIndent(records, jsonIndentPrefixConstant, jsonIndentValueConstant)
	if encodeError != nil {
		return fmt.Errorf(encodeRecordsErrorTemplateConstant, encodeError)
	}

	if writeError := atomic.WriteFile(store.filePath, bytes.NewReader(encodedRecords)); writeError != nil {
		return fmt.Errorf(writeFileErrorTemplateConstant, store.filePath, writeError)
	}

	store.logger.Debug(
		metadataPersistedMessageConstant,
		zap.String(logFieldPathConstant, store.filePath),
		zap.Int(logFieldRecordCountConstant, len(records)),
	)
	return nil
}
