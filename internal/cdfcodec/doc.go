// Package cdfcodec converts between datasets and the variables of a netCDF
// file, as read and written by github.com/batchatco/go-native-netcdf.
//
// Coordinate labels are stored as follows. Numbers are stored as is. Times
// are stored as seconds since the Unix epoch with CF units. Strings are
// stored as int32 positions, with the labels in a JSON "labels" attribute.
// A stacked dim is stored as positions with its level names in a JSON
// "stacked_dims" attribute, and one "<dim>_<level>" variable per level
// marked "level_of", which also restores the level aux column. Other aux
// columns are "<column>" variables marked "aux_of".
// Non-index coordinates are listed in the CF "coordinates" attribute of the
// data variables spanning their dims.
package cdfcodec
