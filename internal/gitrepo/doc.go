// Package gitrepo answers the repository questions branch notes depend on.
//
// RepositoryManager runs git through an injected GitExecutor to report the
// checked-out branch, the work tree root and the configured user name.
package gitrepo
