// Package hcl loads dataset build files written in HCL and translates them
// into the format-agnostic config model.
package hcl
