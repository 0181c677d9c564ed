// Package config defines the format-agnostic model of a dataset build: the
// input sources, how each maps onto the output, and the output layout with
// its splits. It also defines the Loader interface implemented by the HCL
// and YAML packages, and the structural validation shared by both.
//
// The `config.Config` is the single source of truth for the `engine`
// package. Values whose type depends on the data they are compared against
// (coordinate selections, range bounds, function literals) are kept as
// cty.Value and converted once the target coordinate is known.
package config
