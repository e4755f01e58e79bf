// Package execshell provides structured helpers for invoking git.
//
// It wraps os/exec behind the CommandRunner abstraction, exposes
// OSCommandRunner for default process execution, and ShellExecutor for
// running git with zap-logged lifecycle messages so repository lookups stay
// testable without a real git binary.
package execshell
