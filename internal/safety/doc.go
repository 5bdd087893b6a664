// Package safety scans agent-generated code for dangerous operations before
// it reaches the document. Three modes trade convenience for caution: strict
// blocks on any finding, balanced tolerates file access, permissive blocks
// only shell and dynamic-execution primitives.
package safety
