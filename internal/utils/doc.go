// Package utils holds the CLI plumbing shared by gklean commands.
//
// ConfigurationLoader layers embedded defaults, an optional configuration
// file and GKLEAN_ environment variables through Viper. LoggerFactory builds
// zap loggers, and CommandContextAccessor carries per-invocation values such
// as the working directory override through cobra command contexts.
package utils
