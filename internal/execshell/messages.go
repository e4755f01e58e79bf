package execshell

import (
	"fmt"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	commandLabelTemplateConstant            = "%s%s"
	commandWithArgumentsTemplateConstant    = "%s %s"
	workingDirectorySuffixTemplateConstant  = " (in %s)"
	commandArgumentsJoinSeparatorConstant   = " "
	standardErrorSuffixTemplateConstant     = ": %s"
	unknownFailureMessageConstant           = "unknown error"
	emptyStringConstant                     = ""
	defaultWorkingDirectoryLabelConstant    = "current directory"
)

const (
	gitRevParseSubcommandNameConstant    = "rev-parse"
	gitSymbolicRefSubcommandNameConstant = "symbolic-ref"
	gitConfigSubcommandNameConstant      = "config"
	gitWorkTreeFlagConstant              = "--is-inside-work-tree"
	gitShowTopLevelFlagConstant          = "--show-toplevel"
)

const (
	gitWorkTreeStartTemplateConstant                 = "Checking whether %s is a git work tree"
	gitWorkTreeSuccessTemplateConstant               = "Confirmed %s is a git work tree"
	gitWorkTreeFailureTemplateConstant               = "%s is not a git work tree (exit code %d%s)"
	gitWorkTreeExecutionFailureTemplateConstant      = "Unable to inspect work tree in %s: %s"
	gitTopLevelStartTemplateConstant                 = "Resolving repository root for %s"
	gitTopLevelSuccessTemplateConstant               = "Resolved repository root for %s: %s"
	gitTopLevelFailureTemplateConstant               = "Failed to resolve repository root for %s (exit code %d%s)"
	gitTopLevelExecutionFailureTemplateConstant      = "Unable to resolve repository root for %s: %s"
	gitCurrentBranchStartTemplateConstant            = "Resolving current branch in %s"
	gitCurrentBranchSuccessTemplateConstant          = "Current branch in %s is %s"
	gitCurrentBranchFailureTemplateConstant          = "HEAD is not on a branch in %s (exit code %d%s)"
	gitCurrentBranchExecutionFailureTemplateConstant = "Unable to resolve current branch in %s: %s"
	gitConfigValueStartTemplateConstant              = "Reading git config %s in %s"
	gitConfigValueSuccessTemplateConstant            = "Read git config %s in %s"
	gitConfigValueFailureTemplateConstant            = "git config %s is not set in %s (exit code %d%s)"
	gitConfigValueExecutionFailureTemplateConstant   = "Unable to read git config %s in %s: %s"
)

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

func (formatter CommandMessageFormatter) buildMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	if command.Name != CommandGit || len(command.Details.Arguments) == 0 {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	arguments := command.Details.Arguments
	switch strings.TrimSpace(arguments[0]) {
	case gitRevParseSubcommandNameConstant:
		if containsArgument(arguments, gitWorkTreeFlagConstant) {
			return formatter.describeStage(command, result, failure, stage, stageTemplates{
				start:            gitWorkTreeStartTemplateConstant,
				success:          gitWorkTreeSuccessTemplateConstant,
				failure:          gitWorkTreeFailureTemplateConstant,
				executionFailure: gitWorkTreeExecutionFailureTemplateConstant,
			})
		}
		if containsArgument(arguments, gitShowTopLevelFlagConstant) {
			return formatter.describeStage(command, result, failure, stage, stageTemplates{
				start:            gitTopLevelStartTemplateConstant,
				success:          gitTopLevelSuccessTemplateConstant,
				failure:          gitTopLevelFailureTemplateConstant,
				executionFailure: gitTopLevelExecutionFailureTemplateConstant,
				includeOutput:    true,
			})
		}
	case gitSymbolicRefSubcommandNameConstant:
		return formatter.describeStage(command, result, failure, stage, stageTemplates{
			start:            gitCurrentBranchStartTemplateConstant,
			success:          gitCurrentBranchSuccessTemplateConstant,
			failure:          gitCurrentBranchFailureTemplateConstant,
			executionFailure: gitCurrentBranchExecutionFailureTemplateConstant,
			includeOutput:    true,
		})
	case gitConfigSubcommandNameConstant:
		return formatter.describeGitConfigMessage(command, result, failure, stage)
	}
	return formatter.buildGenericMessage(command, result, failure, stage)
}

type stageTemplates struct {
	start            string
	success          string
	failure          string
	executionFailure string
	includeOutput    bool
}

func (formatter CommandMessageFormatter) describeStage(command ShellCommand, result ExecutionResult, failure error, stage messageStage, templates stageTemplates) string {
	workingDirectory := formatter.describeWorkingDirectory(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(templates.start, workingDirectory)
	case messageStageSuccess:
		trimmedOutput := strings.TrimSpace(result.StandardOutput)
		if templates.includeOutput && len(trimmedOutput) > 0 {
			return fmt.Sprintf(templates.success, workingDirectory, trimmedOutput)
		}
		if templates.includeOutput {
			return fmt.Sprintf(genericSuccessTemplateConstant, formatter.formatCommandLabel(command))
		}
		return fmt.Sprintf(templates.success, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(templates.failure, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(templates.executionFailure, workingDirectory, formatter.describeFailure(failure))
	default:
		return emptyStringConstant
	}
}

func (formatter CommandMessageFormatter) describeGitConfigMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	workingDirectory := formatter.describeWorkingDirectory(command)
	configKey := formatter.extractLastNonFlagArgument(command.Details.Arguments[1:])
	if len(configKey) == 0 {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitConfigValueStartTemplateConstant, configKey, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitConfigValueSuccessTemplateConstant, configKey, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(gitConfigValueFailureTemplateConstant, configKey, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(gitConfigValueExecutionFailureTemplateConstant, configKey, workingDirectory, formatter.describeFailure(failure))
	default:
		return emptyStringConstant
	}
}

func (formatter CommandMessageFormatter) buildGenericMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	commandLabel := formatter.formatCommandLabel(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(genericStartTemplateConstant, commandLabel)
	case messageStageSuccess:
		return fmt.Sprintf(genericSuccessTemplateConstant, commandLabel)
	case messageStageFailure:
		return fmt.Sprintf(genericFailureTemplateConstant, commandLabel, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(genericExecutionFailureTemplateConstant, commandLabel, formatter.describeFailure(failure))
	default:
		return emptyStringConstant
	}
}

func (formatter CommandMessageFormatter) formatCommandLabel(command ShellCommand) string {
	commandLabel := string(command.Name)
	if len(command.Details.Arguments) > 0 {
		commandLabel = fmt.Sprintf(commandWithArgumentsTemplateConstant, commandLabel, strings.Join(command.Details.Arguments, commandArgumentsJoinSeparatorConstant))
	}
	return fmt.Sprintf(commandLabelTemplateConstant, commandLabel, formatter.formatWorkingDirectorySuffix(command))
}

func (formatter CommandMessageFormatter) formatWorkingDirectorySuffix(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmedStandardError := strings.TrimSpace(standardError)
	if len(trimmedStandardError) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
}

func (formatter CommandMessageFormatter) describeWorkingDirectory(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return defaultWorkingDirectoryLabelConstant
	}
	return trimmedWorkingDirectory
}

func (formatter CommandMessageFormatter) describeFailure(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}

func (formatter CommandMessageFormatter) extractLastNonFlagArgument(arguments []string) string {
	for index := len(arguments) - 1; index >= 0; index-- {
		argument := strings.TrimSpace(arguments[index])
		if len(argument) == 0 || strings.HasPrefix(argument, "-") {
			continue
		}
		return argument
	}
	return emptyStringConstant
}

func containsArgument(arguments []string, value string) bool {
	for _, argument := range arguments {
		if strings.TrimSpace(argument) == value {
			return true
		}
	}
	return false
}
