// Package source opens the input datasets of a build.
//
// An Opener resolves an input path to a dataset. NetCDF reads files from
// disk, while Memory serves datasets registered under a path, which keeps
// tests and embedding callers off the filesystem.
package source
