// Package vm executes bytecode programs and loads them from disk.
//
// This package contains:
//   - Runtime values: pool scalars plus arrays and objects
//   - The interpreter (one operand stack per call frame)
//   - Typed runtime faults
//   - The Loader, which binds import names to verified programs
package vm
