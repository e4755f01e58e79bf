package branchmeta_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sys/unix"

	"github.com/temirov/gklean/internal/branchmeta"
)

const (
	testBranchNameConstant              = "feature-x"
	testOtherBranchNameConstant         = "bugfix/login"
	testOwnerConstant                   = "Ada Lovelace"
	testDescriptionConstant             = "payment retry logic"
	testTodoTextConstant                = "write tests"
	testMalformedContentConstant        = "not valid json"
	testEmptyMappingContentConstant     = "{}"
	testInvalidStatusConstant           = "DONE"
	testInitialUnixSecondsConstant      = 1700000000
	testMalformedWarningMessageConstant = "metadata file is malformed; continuing with an empty store"
)

type steppingClock struct {
	current time.Time
}

func (clock *steppingClock) Now() time.Time {
	return clock.current
}

func (clock *steppingClock) Advance(duration time.Duration) {
	clock.current = clock.current.Add(duration)
}

func newSteppingClock() *steppingClock {
	return &steppingClock{current: time.Unix(testInitialUnixSecondsConstant, 0)}
}

func openTestStore(testInstance *testing.T, root string, clock branchmeta.Clock) *branchmeta.Store {
	testInstance.Helper()
	store, openError := branchmeta.Open(root, branchmeta.StoreDependencies{
		Logger:        zap.NewNop(),
		Clock:         clock,
		OwnerProvider: func() string { return testOwnerConstant },
	})
	require.NoError(testInstance, openError)
	return store
}

func holdMetadataLock(testInstance *testing.T, root string) func() {
	testInstance.Helper()
	lockFile, openError := os.OpenFile(branchmeta.MetadataFilePath(root)+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(testInstance, openError)
	require.NoError(testInstance, unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB))
	return func() {
		_ = unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)
		_ = lockFile.Close()
	}
}

func readMetadataFile(testInstance *testing.T, root string) []byte {
	testInstance.Helper()
	content, readError := os.ReadFile(branchmeta.MetadataFilePath(root))
	require.NoError(testInstance, readError)
	return content
}

func TestOpenCreatesEmptyMapping(testInstance *testing.T) {
	root := testInstance.TempDir()

	store := openTestStore(testInstance, root, newSteppingClock())

	require.Equal(testInstance, filepath.Join(root, ".gklean", "branch_meta.json"), store.Path())
	require.Equal(testInstance, testEmptyMappingContentConstant, string(readMetadataFile(testInstance, root)))
	require.Empty(testInstance, store.Branches())

	fileInfo, statError := os.Stat(store.Path())
	require.NoError(testInstance, statError)
	require.Equal(testInstance, os.FileMode(0o644), fileInfo.Mode().Perm())
}

func TestOpenRequiresRoot(testInstance *testing.T) {
	_, openError := branchmeta.Open("  ", branchmeta.StoreDependencies{})
	require.ErrorIs(testInstance, openError, branchmeta.ErrStorageRootRequired)
}

func TestOpenRecoversFromMalformedFile(testInstance *testing.T) {
	root := testInstance.TempDir()
	require.NoError(testInstance, os.MkdirAll(branchmeta.MetadataDirectoryPath(root), 0o755))
	require.NoError(testInstance, os.WriteFile(branchmeta.MetadataFilePath(root), []byte(testMalformedContentConstant), 0o644))

	observerCore, observedLogs := observer.New(zap.WarnLevel)
	store, openError := branchmeta.Open(root, branchmeta.StoreDependencies{Logger: zap.New(observerCore)})
	require.NoError(testInstance, openError)

	require.Empty(testInstance, store.Branches())
	_, present := store.Get(testBranchNameConstant)
	require.False(testInstance, present)

	backupContent, backupReadError := os.ReadFile(branchmeta.MetadataFilePath(root) + ".bak")
	require.NoError(testInstance, backupReadError)
	require.Equal(testInstance, testMalformedContentConstant, string(backupContent))

	require.Equal(testInstance, 1, observedLogs.FilterMessage(testMalformedWarningMessageConstant).Len())
}

func TestGetDoesNotCreateRecords(testInstance *testing.T) {
	root := testInstance.TempDir()
	store := openTestStore(testInstance, root, newSteppingClock())

	record, present := store.Get(testBranchNameConstant)
	require.False(testInstance, present)
	require.Equal(testInstance, branchmeta.BranchRecord{}, record)
	require.Equal(testInstance, testEmptyMappingContentConstant, string(readMetadataFile(testInstance, root)))
}

func TestMutationsCreateRecordsLazily(testInstance *testing.T) {
	testCases := []struct {
		name   string
		mutate func(store *branchmeta.Store) error
	}{
		{
			name: "set_description",
			mutate: func(store *branchmeta.Store) error {
				return store.SetDescription(testBranchNameConstant, testDescriptionConstant)
			},
		},
		{
			name: "set_status",
			mutate: func(store *branchmeta.Store) error {
				return store.SetStatus(testBranchNameConstant, branchmeta.StatusBlocked)
			},
		},
		{
			name: "add_todo",
			mutate: func(store *branchmeta.Store) error {
				_, addError := store.AddTodo(testBranchNameConstant, testTodoTextConstant)
				return addError
			},
		},
		{
			name: "touch",
			mutate: func(store *branchmeta.Store) error {
				return store.Touch(testBranchNameConstant)
			},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			clock := newSteppingClock()
			store := openTestStore(testInstance, testInstance.TempDir(), clock)

			require.NoError(testInstance, testCase.mutate(store))
			firstRecord, present := store.Get(testBranchNameConstant)
			require.True(testInstance, present)
			require.Equal(testInstance, int64(testInitialUnixSecondsConstant), firstRecord.CreatedAt)
			require.Equal(testInstance, firstRecord.CreatedAt, firstRecord.LastTouched)
			require.Equal(testInstance, testOwnerConstant, firstRecord.Owner)

			clock.Advance(90 * time.Second)
			require.NoError(testInstance, testCase.mutate(store))
			secondRecord, _ := store.Get(testBranchNameConstant)
			require.Equal(testInstance, firstRecord.CreatedAt, secondRecord.CreatedAt)
			require.Equal(testInstance, firstRecord.CreatedAt+90, secondRecord.LastTouched)
		})
	}
}

func TestNewRecordDefaults(testInstance *testing.T) {
	store := openTestStore(testInstance, testInstance.TempDir(), newSteppingClock())

	require.NoError(testInstance, store.Touch(testBranchNameConstant))

	record, present := store.Get(testBranchNameConstant)
	require.True(testInstance, present)
	require.Equal(testInstance, branchmeta.StatusWorkInProgress, record.Status)
	require.Empty(testInstance, record.Description)
	require.NotNil(testInstance, record.Todos)
	require.Empty(testInstance, record.Todos)
}

func TestOwnerFallsBackToUnknown(testInstance *testing.T) {
	store, openError := branchmeta.Open(testInstance.TempDir(), branchmeta.StoreDependencies{
		OwnerProvider: func() string { return "   " },
	})
	require.NoError(testInstance, openError)

	require.NoError(testInstance, store.Touch(testBranchNameConstant))
	record, _ := store.Get(testBranchNameConstant)
	require.Equal(testInstance, branchmeta.UnknownOwnerConstant, record.Owner)
}

func TestOwnerIsNeverOverwritten(testInstance *testing.T) {
	root := testInstance.TempDir()
	firstStore := openTestStore(testInstance, root, newSteppingClock())
	require.NoError(testInstance, firstStore.Touch(testBranchNameConstant))

	secondStore, openError := branchmeta.Open(root, branchmeta.StoreDependencies{
		OwnerProvider: func() string { return "Grace Hopper" },
	})
	require.NoError(testInstance, openError)
	require.NoError(testInstance, secondStore.SetDescription(testBranchNameConstant, testDescriptionConstant))

	record, _ := secondStore.Get(testBranchNameConstant)
	require.Equal(testInstance, testOwnerConstant, record.Owner)
}

func TestAddTodoPreservesInsertionOrder(testInstance *testing.T) {
	root := testInstance.TempDir()
	store := openTestStore(testInstance, root, newSteppingClock())

	todoTexts := []string{"t1", "t2", "t3"}
	createdTodos := make([]branchmeta.TodoItem, 0, len(todoTexts))
	for _, todoText := range todoTexts {
		createdTodo, addError := store.AddTodo(testBranchNameConstant, todoText)
		require.NoError(testInstance, addError)
		createdTodos = append(createdTodos, createdTodo)
	}

	_, completeError := store.CompleteTodo(testBranchNameConstant, createdTodos[1].ID)
	require.NoError(testInstance, completeError)
	_, completeError = store.CompleteTodo(testBranchNameConstant, createdTodos[0].ID)
	require.NoError(testInstance, completeError)

	reopenedStore := openTestStore(testInstance, root, newSteppingClock())
	record, present := reopenedStore.Get(testBranchNameConstant)
	require.True(testInstance, present)

	storedTexts := make([]string, 0, len(record.Todos))
	for _, todoItem := range record.Todos {
		storedTexts = append(storedTexts, todoItem.Text)
	}
	require.Equal(testInstance, todoTexts, storedTexts)
	require.Equal(testInstance, []bool{true, true, false}, []bool{record.Todos[0].Done, record.Todos[1].Done, record.Todos[2].Done})
}

func TestAddTodoAssignsUniqueIncreasingIdentifiers(testInstance *testing.T) {
	store := openTestStore(testInstance, testInstance.TempDir(), newSteppingClock())

	var previousIdentifier int64
	for todoIndex := 0; todoIndex < 5; todoIndex++ {
		createdTodo, addError := store.AddTodo(testBranchNameConstant, testTodoTextConstant)
		require.NoError(testInstance, addError)
		require.Greater(testInstance, createdTodo.ID, previousIdentifier)
		require.False(testInstance, createdTodo.Done)
		require.Equal(testInstance, int64(testInitialUnixSecondsConstant), createdTodo.CreatedAt)
		previousIdentifier = createdTodo.ID
	}
}

func TestAddTodoRejectsEmptyText(testInstance *testing.T) {
	root := testInstance.TempDir()
	store := openTestStore(testInstance, root, newSteppingClock())

	_, addError := store.AddTodo(testBranchNameConstant, " \t ")
	require.ErrorIs(testInstance, addError, branchmeta.ErrTodoTextRequired)
	require.Equal(testInstance, testEmptyMappingContentConstant, string(readMetadataFile(testInstance, root)))
}

func TestCompleteTodoReportsMissingItems(testInstance *testing.T) {
	root := testInstance.TempDir()
	store := openTestStore(testInstance, root, newSteppingClock())

	_, completeError := store.CompleteTodo(testBranchNameConstant, 42)
	require.ErrorIs(testInstance, completeError, branchmeta.ErrTodoNotFound)
	_, present := store.Get(testBranchNameConstant)
	require.False(testInstance, present)

	_, addError := store.AddTodo(testBranchNameConstant, testTodoTextConstant)
	require.NoError(testInstance, addError)
	contentBefore := readMetadataFile(testInstance, root)

	_, completeError = store.CompleteTodo(testBranchNameConstant, 42)
	require.ErrorIs(testInstance, completeError, branchmeta.ErrTodoNotFound)
	require.Equal(testInstance, contentBefore, readMetadataFile(testInstance, root))
}

func TestSetStatusRejectsUnsupportedValueWithoutWriting(testInstance *testing.T) {
	root := testInstance.TempDir()
	store := openTestStore(testInstance, root, newSteppingClock())
	require.NoError(testInstance, store.SetDescription(testBranchNameConstant, testDescriptionConstant))
	contentBefore := readMetadataFile(testInstance, root)

	statusError := store.SetStatus(testBranchNameConstant, branchmeta.Status(testInvalidStatusConstant))
	require.ErrorIs(testInstance, statusError, branchmeta.ErrInvalidStatus)

	var invalidStatusError branchmeta.InvalidStatusError
	require.True(testInstance, errors.As(statusError, &invalidStatusError))
	require.Equal(testInstance, testInvalidStatusConstant, invalidStatusError.Value)
	require.Equal(testInstance, contentBefore, readMetadataFile(testInstance, root))
}

func TestMutationsRequireBranchName(testInstance *testing.T) {
	store := openTestStore(testInstance, testInstance.TempDir(), newSteppingClock())
	require.ErrorIs(testInstance, store.SetDescription("", testDescriptionConstant), branchmeta.ErrBranchNameRequired)
}

func TestStoreRoundTrip(testInstance *testing.T) {
	root := testInstance.TempDir()
	clock := newSteppingClock()
	store := openTestStore(testInstance, root, clock)

	require.NoError(testInstance, store.SetDescription(testBranchNameConstant, testDescriptionConstant))
	_, addError := store.AddTodo(testBranchNameConstant, testTodoTextConstant)
	require.NoError(testInstance, addError)
	clock.Advance(time.Minute)
	require.NoError(testInstance, store.SetStatus(testOtherBranchNameConstant, branchmeta.StatusSafe))
	require.NoError(testInstance, store.Persist())

	originalRecords := map[string]branchmeta.BranchRecord{}
	for _, branchName := range store.Branches() {
		record, _ := store.Get(branchName)
		originalRecords[branchName] = record
	}

	reloadedStore := openTestStore(testInstance, root, newSteppingClock())
	reloadedRecords := map[string]branchmeta.BranchRecord{}
	for _, branchName := range reloadedStore.Branches() {
		record, _ := reloadedStore.Get(branchName)
		reloadedRecords[branchName] = record
	}

	if difference := cmp.Diff(originalRecords, reloadedRecords); difference != "" {
		testInstance.Fatalf("reloaded records differ (-original +reloaded):\n%s", difference)
	}
	require.Equal(testInstance, []string{testOtherBranchNameConstant, testBranchNameConstant}, reloadedStore.Branches())
}

func TestStoreReloadsBeforeMutating(testInstance *testing.T) {
	root := testInstance.TempDir()
	firstStore := openTestStore(testInstance, root, newSteppingClock())
	secondStore := openTestStore(testInstance, root, newSteppingClock())

	require.NoError(testInstance, firstStore.SetDescription(testBranchNameConstant, testDescriptionConstant))
	require.NoError(testInstance, secondStore.SetStatus(testOtherBranchNameConstant, branchmeta.StatusReview))

	reopenedStore := openTestStore(testInstance, root, newSteppingClock())
	require.Equal(testInstance, []string{testOtherBranchNameConstant, testBranchNameConstant}, reopenedStore.Branches())
}

func TestStoredInvalidStatusIsNormalized(testInstance *testing.T) {
	root := testInstance.TempDir()
	require.NoError(testInstance, os.MkdirAll(branchmeta.MetadataDirectoryPath(root), 0o755))
	storedContent := `{"feature-x": {"created_at": 10, "owner": "", "status": "DONE", "description": "", "last_touched": 5}}`
	require.NoError(testInstance, os.WriteFile(branchmeta.MetadataFilePath(root), []byte(storedContent), 0o644))

	store := openTestStore(testInstance, root, newSteppingClock())
	record, present := store.Get(testBranchNameConstant)
	require.True(testInstance, present)
	require.Equal(testInstance, branchmeta.StatusWorkInProgress, record.Status)
	require.Equal(testInstance, int64(10), record.LastTouched)
	require.NotNil(testInstance, record.Todos)
}

func TestMutationFailsWhenLockIsHeld(testInstance *testing.T) {
	root := testInstance.TempDir()
	store, openError := branchmeta.Open(root, branchmeta.StoreDependencies{LockTimeout: 50 * time.Millisecond})
	require.NoError(testInstance, openError)

	releaseLock := holdMetadataLock(testInstance, root)
	defer releaseLock()

	mutationError := store.Touch(testBranchNameConstant)
	require.ErrorIs(testInstance, mutationError, branchmeta.ErrLockTimeout)
	require.Equal(testInstance, testEmptyMappingContentConstant, string(readMetadataFile(testInstance, root)))
}

func TestConcreteFeatureBranchScenario(testInstance *testing.T) {
	root := testInstance.TempDir()
	store := openTestStore(testInstance, root, newSteppingClock())

	require.NoError(testInstance, store.SetDescription(testBranchNameConstant, testDescriptionConstant))
	_, addError := store.AddTodo(testBranchNameConstant, testTodoTextConstant)
	require.NoError(testInstance, addError)
	require.NoError(testInstance, store.SetStatus(testBranchNameConstant, branchmeta.StatusReview))

	record, present := store.Get(testBranchNameConstant)
	require.True(testInstance, present)
	require.Equal(testInstance, branchmeta.StatusReview, record.Status)
	require.Equal(testInstance, testDescriptionConstant, record.Description)
	require.Len(testInstance, record.Todos, 1)
	require.Equal(testInstance, testTodoTextConstant, record.Todos[0].Text)
	require.False(testInstance, record.Todos[0].Done)

	rendered := branchmeta.RenderContext(testBranchNameConstant, record, present)
	require.Contains(testInstance, rendered, "   Status: REVIEW")
	require.Contains(testInstance, rendered, "(Owner: "+testOwnerConstant+")")
	require.Contains(testInstance, rendered, "   Description: "+testDescriptionConstant)
	require.Contains(testInstance, rendered, "      - "+testTodoTextConstant)
}

type obstructingClock struct {
	steppingClock
	beforeNow func()
}

func (clock *obstructingClock) Now() time.Time {
	if hook := clock.beforeNow; hook != nil {
		clock.beforeNow = nil
		hook()
	}
	return clock.steppingClock.Now()
}

// obstructMetadataFile moves the metadata file aside and puts a non-empty
// directory in its place so the atomic rename fails. The returned function
// undoes the swap.
func obstructMetadataFile(testInstance *testing.T, root string) func() {
	testInstance.Helper()
	metadataPath := branchmeta.MetadataFilePath(root)
	heldPath := metadataPath + ".held"
	require.NoError(testInstance, os.Rename(metadataPath, heldPath))
	require.NoError(testInstance, os.Mkdir(metadataPath, 0o755))
	require.NoError(testInstance, os.WriteFile(filepath.Join(metadataPath, "occupant"), []byte("x"), 0o644))
	return func() {
		require.NoError(testInstance, os.RemoveAll(metadataPath))
		require.NoError(testInstance, os.Rename(heldPath, metadataPath))
	}
}

func TestMutationWriteFailureLeavesPreviousContent(testInstance *testing.T) {
	root := testInstance.TempDir()
	clock := &obstructingClock{steppingClock: *newSteppingClock()}
	store := openTestStore(testInstance, root, clock)
	require.NoError(testInstance, store.SetDescription(testBranchNameConstant, testDescriptionConstant))
	contentBefore := readMetadataFile(testInstance, root)

	var restoreMetadataFile func()
	clock.beforeNow = func() {
		restoreMetadataFile = obstructMetadataFile(testInstance, root)
	}
	clock.Advance(time.Minute)

	descriptionError := store.SetDescription(testBranchNameConstant, "rewritten")
	require.Error(testInstance, descriptionError)
	require.NotNil(testInstance, restoreMetadataFile)
	restoreMetadataFile()

	require.Equal(testInstance, contentBefore, readMetadataFile(testInstance, root))
	record, present := store.Get(testBranchNameConstant)
	require.True(testInstance, present)
	require.Equal(testInstance, testDescriptionConstant, record.Description)
}

func TestUpdateAppliesChangesInOneWrite(testInstance *testing.T) {
	root := testInstance.TempDir()
	clock := newSteppingClock()
	store := openTestStore(testInstance, root, clock)
	require.NoError(testInstance, store.SetDescription(testBranchNameConstant, testDescriptionConstant))
	clock.Advance(time.Hour)

	updateError := store.Update(testBranchNameConstant, func(record *branchmeta.BranchRecord) error {
		record.Status = branchmeta.StatusBlocked
		record.Description = "waiting on API"
		return nil
	})
	require.NoError(testInstance, updateError)

	record, present := store.Get(testBranchNameConstant)
	require.True(testInstance, present)
	require.Equal(testInstance, branchmeta.StatusBlocked, record.Status)
	require.Equal(testInstance, "waiting on API", record.Description)
	require.Equal(testInstance, int64(testInitialUnixSecondsConstant), record.CreatedAt)
	require.Equal(testInstance, int64(testInitialUnixSecondsConstant+3600), record.LastTouched)
}

func TestUpdateRejectedChangesWriteNothing(testInstance *testing.T) {
	changeFailure := errors.New("change rejected")
	testCases := []struct {
		name          string
		change        func(record *branchmeta.BranchRecord) error
		expectedError error
	}{
		{
			name: "change_error",
			change: func(record *branchmeta.BranchRecord) error {
				record.Description = "discarded"
				return changeFailure
			},
			expectedError: changeFailure,
		},
		{
			name: "unsupported_status",
			change: func(record *branchmeta.BranchRecord) error {
				record.Status = branchmeta.Status(testInvalidStatusConstant)
				return nil
			},
			expectedError: branchmeta.ErrInvalidStatus,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			root := testInstance.TempDir()
			store := openTestStore(testInstance, root, newSteppingClock())
			require.NoError(testInstance, store.SetDescription(testBranchNameConstant, testDescriptionConstant))
			contentBefore := readMetadataFile(testInstance, root)

			updateError := store.Update(testBranchNameConstant, testCase.change)
			require.ErrorIs(testInstance, updateError, testCase.expectedError)
			require.Equal(testInstance, contentBefore, readMetadataFile(testInstance, root))

			record, _ := store.Get(testBranchNameConstant)
			require.Equal(testInstance, testDescriptionConstant, record.Description)
			require.Equal(testInstance, branchmeta.StatusWorkInProgress, record.Status)
		})
	}
}
