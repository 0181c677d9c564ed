// Package yamlconfig loads dataset build files in the YAML layout, where
// inputs, variables and splits are keyed mappings. Mapping order is
// significant: inputs are merged in the order they appear.
package yamlconfig
