// Package split partitions a merged dataset into named half-open ranges
// along one dim and computes summary statistics per split.
//
// Statistics reduce every data variable over the requested dims it spans.
// Ops prefixed with "diff_" reduce the first difference along the split dim
// instead, taken within the split only, and apply to variables spanning
// that dim. NaN values are skipped.
package split
