// Package cmd implements the command-line interface of kiln. Every command
// opens exactly one store (local or remote, selected by flags or KILN_*
// environment variables), runs and closes it again.
//
// The package is organized into several subpackages:
//
//   - store: Commands for single collection operations (get, list, put, patch, etc.) and benchmarks
//   - backup: Commands creating and restoring whole-store backup documents
//   - migrate: Migration of legacy data into the configured store
//   - util: Shared flags, configuration and the composition root (internal use)
//
// See kiln -help for a list of all commands.
package cmd
