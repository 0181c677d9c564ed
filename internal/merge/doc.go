// Package merge folds dimension-mapped source contributions into the output
// variables of one merged dataset.
//
// Coordinate values are established per dim: along a dim declared by two or
// more output variables the established set lives on the Context and binds
// every output variable; along any other dim it lives on the Accumulator of
// the one output variable that declares it. Each contribution is intersected
// with the established set, and a narrowed set is re-applied to everything
// merged before, so the result does not depend on the order in which
// sources arrive. The variables dim of each output variable is not
// established but concatenated.
package merge
