// Package vm implements the phoebe runtime.
//
// This package contains:
//   - NaN-boxed object representation
//   - Heap objects and the allocation registry
//   - Per-thread stacks and environments
//   - The concurrent mark-sweep collector
//   - The evaluator
package vm
