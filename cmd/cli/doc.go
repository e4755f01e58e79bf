// Package cli constructs the gklean command-line interface. It wires the
// cobra command hierarchy to the Viper configuration loader and zap logging,
// and registers the branch notes commands under a single root.
package cli
