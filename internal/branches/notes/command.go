package notes

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/gklean/internal/branchmeta"
	"github.com/temirov/gklean/internal/execshell"
	"github.com/temirov/gklean/internal/gitrepo"
	"github.com/temirov/gklean/internal/utils"
)

const (
	noteCommandUseConstant                 = "note <text>"
	noteCommandShortDescriptionConstant    = "Set the description of the current branch"
	noteCommandLongDescriptionConstant     = "note replaces the free-text description stored for the current branch, creating its record on first use."
	noteCommandExampleConstant             = "gklean note \"Refactoring the payment retry loop\""
	todoCommandUseConstant                 = "todo <text>"
	todoCommandShortDescriptionConstant    = "Add a pending task to the current branch"
	todoCommandExampleConstant             = "gklean todo \"Add integration test for retries\""
	doneCommandUseConstant                 = "done <id>"
	doneCommandShortDescriptionConstant    = "Mark a task on the current branch as done"
	doneCommandExampleConstant             = "gklean done 1712345678901"
	statusCommandUseConstant               = "status <WIP|BLOCKED|REVIEW|SAFE> [description]"
	statusCommandShortDescriptionConstant  = "Set the status of the current branch"
	statusCommandLongDescriptionConstant   = "status records one of WIP, BLOCKED, REVIEW or SAFE for the current branch. An optional second argument also replaces the branch description."
	statusCommandExampleConstant           = "gklean status review \"Ready for a second pair of eyes\""
	contextCommandUseConstant              = "context"
	contextCommandShortDescriptionConstant = "Show the stored context for the current branch"
	argumentsJoinSeparatorConstant         = " "
	successPrefixConstant                  = "✔"
	noteSavedTemplateConstant              = "%s Description saved for %s"
	todoAddedTemplateConstant              = "%s Added task %d to %s"
	todoCompletedTemplateConstant          = "%s Completed task %d on %s: %s"
	statusUpdatedTemplateConstant          = "%s %s is now %s"
	statusDescriptionSuffixConstant        = " (description updated)"
	missingContextTemplateConstant         = "No memory found for %s. Use 'gklean note' to add some!"
	invalidTodoIDMessageConstant           = "invalid task id"
	invalidTodoIDTemplateConstant          = "%w %q: expected an integer"
	serviceConfiguredMessageConstant       = "branch notes service configured"
	logFieldConfigFileConstant             = "config_file"
	logFieldLockTimeoutConstant            = "lock_timeout"
	logFieldWorkingDirectoryConstant       = "working_directory"
)

// ErrInvalidTodoID indicates the done command received a non-numeric identifier.
var ErrInvalidTodoID = errors.New(invalidTodoIDMessageConstant)

// LoggerProvider yields a zap logger instance.
type LoggerProvider func() *zap.Logger

// CommandBuilder assembles the branch notes commands.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider func() CommandConfiguration
	GitExecutor           gitrepo.GitExecutor
	Clock                 branchmeta.Clock
	WorkingDirectory      string
}

// Build constructs the note, todo, done, status and context commands.
func (builder *CommandBuilder) Build() ([]*cobra.Command, error) {
	noteCommand := &cobra.Command{
		Use:     noteCommandUseConstant,
		Short:   noteCommandShortDescriptionConstant,
		Long:    noteCommandLongDescriptionConstant,
		Example: noteCommandExampleConstant,
		Args:    cobra.MinimumNArgs(1),
		RunE:    builder.runNote,
	}

	todoCommand := &cobra.Command{
		Use:     todoCommandUseConstant,
		Short:   todoCommandShortDescriptionConstant,
		Example: todoCommandExampleConstant,
		Args:    cobra.MinimumNArgs(1),
		RunE:    builder.runTodo,
	}

	doneCommand := &cobra.Command{
		Use:     doneCommandUseConstant,
		Short:   doneCommandShortDescriptionConstant,
		Example: doneCommandExampleConstant,
		Args:    cobra.ExactArgs(1),
		RunE:    builder.runDone,
	}

	statusCommand := &cobra.Command{
		Use:       statusCommandUseConstant,
		Short:     statusCommandShortDescriptionConstant,
		Long:      statusCommandLongDescriptionConstant,
		Example:   statusCommandExampleConstant,
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: branchmeta.SupportedStatusNames(),
		RunE:      builder.runStatus,
	}

	contextCommand := &cobra.Command{
		Use:   contextCommandUseConstant,
		Short: contextCommandShortDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.runContext,
	}

	return []*cobra.Command{noteCommand, todoCommand, doneCommand, statusCommand, contextCommand}, nil
}

func (builder *CommandBuilder) runNote(command *cobra.Command, arguments []string) error {
	service, serviceError := builder.buildService(command)
	if serviceError != nil {
		return serviceError
	}

	result, noteError := service.Note(command.Context(), strings.Join(arguments, argumentsJoinSeparatorConstant))
	if noteError != nil {
		return noteError
	}

	writeSuccess(command.OutOrStdout(), fmt.Sprintf(noteSavedTemplateConstant, successPrefixConstant, result.BranchName))
	return nil
}

func (builder *CommandBuilder) runTodo(command *cobra.Command, arguments []string) error {
	service, serviceError := builder.buildService(command)
	if serviceError != nil {
		return serviceError
	}

	result, todoError := service.AddTodo(command.Context(), strings.Join(arguments, argumentsJoinSeparatorConstant))
	if todoError != nil {
		return todoError
	}

	writeSuccess(command.OutOrStdout(), fmt.Sprintf(todoAddedTemplateConstant, successPrefixConstant, result.Todo.ID, result.BranchName))
	return nil
}

func (builder *CommandBuilder) runDone(command *cobra.Command, arguments []string) error {
	todoID, parseError := strconv.ParseInt(strings.TrimSpace(arguments[0]), 10, 64)
	if parseError != nil {
		return fmt.Errorf(invalidTodoIDTemplateConstant, ErrInvalidTodoID, arguments[0])
	}

	service, serviceError := builder.buildService(command)
	if serviceError != nil {
		return serviceError
	}

	result, completeError := service.CompleteTodo(command.Context(), todoID)
	if completeError != nil {
		return completeError
	}

	writeSuccess(command.OutOrStdout(), fmt.Sprintf(todoCompletedTemplateConstant, successPrefixConstant, result.Todo.ID, result.BranchName, result.Todo.Text))
	return nil
}

func (builder *CommandBuilder) runStatus(command *cobra.Command, arguments []string) error {
	service, serviceError := builder.buildService(command)
	if serviceError != nil {
		return serviceError
	}

	description := strings.Join(arguments[1:], argumentsJoinSeparatorConstant)
	result, statusError := service.SetStatus(command.Context(), arguments[0], description)
	if statusError != nil {
		return statusError
	}

	message := fmt.Sprintf(statusUpdatedTemplateConstant, successPrefixConstant, result.BranchName, result.Status)
	if result.DescriptionUpdated {
		message += statusDescriptionSuffixConstant
	}
	writeSuccess(command.OutOrStdout(), message)
	return nil
}

func (builder *CommandBuilder) runContext(command *cobra.Command, _ []string) error {
	service, serviceError := builder.buildService(command)
	if serviceError != nil {
		return serviceError
	}

	result, contextError := service.Context(command.Context())
	if contextError != nil {
		return contextError
	}

	if !result.Present {
		fmt.Fprintln(command.OutOrStdout(), color.New(color.FgYellow).Sprintf(missingContextTemplateConstant, result.BranchName))
		return nil
	}

	fmt.Fprintln(command.OutOrStdout(), result.Rendered)
	return nil
}

func (builder *CommandBuilder) buildService(command *cobra.Command) (*Service, error) {
	configuration := builder.resolveConfiguration()
	logger := builder.resolveLogger()

	gitExecutor, executorError := builder.resolveGitExecutor(logger)
	if executorError != nil {
		return nil, executorError
	}

	repositoryManager, managerError := gitrepo.NewRepositoryManager(gitExecutor)
	if managerError != nil {
		return nil, managerError
	}

	workingDirectory := builder.resolveWorkingDirectory(command)
	logger.Debug(
		serviceConfiguredMessageConstant,
		zap.String(logFieldConfigFileConstant, builder.resolveConfigurationFilePath(command)),
		zap.Duration(logFieldLockTimeoutConstant, configuration.LockTimeout),
		zap.String(logFieldWorkingDirectoryConstant, workingDirectory),
	)

	return NewService(ServiceDependencies{
		BranchResolver:   repositoryManager,
		RootLocator:      repositoryManager,
		IdentityProvider: repositoryManager,
		Logger:           logger,
		Clock:            builder.Clock,
		LockTimeout:      configuration.LockTimeout,
		WorkingDirectory: workingDirectory,
	})
}

func (builder *CommandBuilder) resolveConfigurationFilePath(command *cobra.Command) string {
	if command == nil {
		return ""
	}
	configurationFilePath, _ := utils.NewCommandContextAccessor().ConfigurationFilePath(command.Context())
	return configurationFilePath
}

func (builder *CommandBuilder) resolveWorkingDirectory(command *cobra.Command) string {
	if len(strings.TrimSpace(builder.WorkingDirectory)) > 0 {
		return builder.WorkingDirectory
	}
	if command == nil {
		return ""
	}
	workingDirectory, _ := utils.NewCommandContextAccessor().WorkingDirectory(command.Context())
	return workingDirectory
}

func (builder *CommandBuilder) resolveGitExecutor(logger *zap.Logger) (gitrepo.GitExecutor, error) {
	if builder.GitExecutor != nil {
		return builder.GitExecutor, nil
	}

	shellExecutor, creationError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner())
	if creationError != nil {
		return nil, creationError
	}
	return shellExecutor, nil
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return DefaultCommandConfiguration()
	}
	return builder.ConfigurationProvider().Sanitize()
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}
	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func writeSuccess(writer io.Writer, message string) {
	fmt.Fprintln(writer, color.New(color.FgGreen).Sprint(message))
}
