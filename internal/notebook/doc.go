// Package notebook defines the document the agent's suggestions act on.
//
// The Notebook interface covers cell creation, modification, deletion, and
// execution. Memory is the in-process implementation used by the CLI; it
// also builds the context snapshot (cell codes, variables, recent errors,
// execution history) attached to each chat request.
package notebook
