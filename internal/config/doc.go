// Package config defines configuration for the spanfetch CLI.
//
// Configuration can be provided via, in increasing priority:
//   - YAML configuration file
//   - dotenv file (loaded into the environment)
//   - Environment variables (SPANFETCH_ prefix)
//   - Command-line flags
//
// Byte sizes accept human-readable values ("8MiB", "64MB"), durations use
// time.ParseDuration syntax.
//
// # Example
//
//	part_size: 16MiB
//	concurrency: 32
//	attempt_timeout: 30s
//	retry:
//	  attempts: 5
//	  backoff: 500ms
//	  max_backoff: 20s
//	headers:
//	  Authorization: Bearer xyz
package config
