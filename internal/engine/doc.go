// Package engine assembles the merged dataset described by a configuration.
//
// Sources are folded into a merge context one at a time, in declaration
// order. Each source is opened, its requested variables are selected, its
// expected attributes are checked, its derived variables are computed, and
// the result is mapped onto the dims of its target output variable before
// it is merged. Once every source is in, the merge is finalized, a chunk
// plan is resolved and the configured splits and their statistics are
// computed.
//
// Any failure aborts the build. Nothing is written by this package; the
// caller hands the Result to a store.Writer.
package engine
