// Package notes records per-branch working memory for gklean.
//
// Service resolves the current branch through git, opens the branch metadata
// store anchored at the repository root, and applies one operation per call:
// set the description, add or complete a todo, change the status, or render
// the branch context. CommandBuilder exposes those operations as cobra
// commands.
package notes
