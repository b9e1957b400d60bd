// Package vm links decoded ABC files into programs and executes them.
//
// This package contains:
//   - Tagged value representation and primitive coercions
//   - Arena heap with a tracing collector
//   - Trait tables and class assembly
//   - Byte-code interpreter with scope chains and exception tables
//   - Builtin classes (Object, Array, String, Math, Error, ...)
package vm
