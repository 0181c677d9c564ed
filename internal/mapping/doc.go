// Package mapping reshapes a source dataset onto the canonical dims of its
// target output variable. Each output dim is produced by exactly one Rule:
// Rename, Stack or StackVariablesByVarName. The rule set is closed; Apply
// switches over it exhaustively.
package mapping
