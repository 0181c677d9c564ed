// Package cli parses the command line of the dataset builder into an
// app.Config and maps usage problems onto process exit codes.
package cli
