// Package patchwork changes what routines do without recompiling them.
//
// An owner publishes declarations, each one a transform of a target
// routine's body (see package splice). A Registry activates and deactivates
// them by owner or by group, composes every active declaration of a routine
// onto a fresh copy of its pristine body and hands the result to a Host to
// install. Removing the last declaration puts the pristine body back.
//
// Declarations are composed in the order they were activated, so the result
// of any set of active declarations does not depend on which owners were
// removed in between.
//
// Package vm is a Host for routines written in the il instruction set, and
// package native (linux/amd64) binds real Go functions to vm routines.
package patchwork
