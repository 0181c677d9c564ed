// Package store persists the merged dataset.
//
// A Writer receives the finished dataset together with its chunk plan.
// NetCDF writes a netCDF file through a temporary sibling that is renamed
// into place, so a failed build never leaves a partial file at the output
// path. Memory keeps written datasets for inspection.
package store
