// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Relative file paths (schemas, symbols, credentials, type hints) are resolved
// against the directory containing the config file.
package config
