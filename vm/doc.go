// Package vm runs il routines.
//
// A Host holds routines defined from an il.Stream or implemented in Go
// (Native). Bodies are verified before they are accepted: labels must
// resolve, the stack may never underflow, paths that meet must agree on the
// stack depth, and every path must end in a return. Install replaces a body
// and Revert restores the one the routine was defined with, so a Host is
// both the source of pristine bodies and the installer for composed ones.
package vm
