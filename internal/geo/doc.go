// Package geo holds the pure geometry used by the tracking engine and the
// route renderer: great-circle distance between fixes and Douglas-Peucker
// polyline simplification. Nothing in this package performs I/O or keeps
// state, so every function is safe to call from any goroutine.
package geo
