// Package tracking implements the GPS activity tracker: the session state
// machine, the location fix acceptance policy, incremental track point
// persistence and the trip statistics computed when a session stops.
//
// The engine talks to its collaborators only through the interfaces in
// collaborators.go. Storage, the positioning hardware, restart recovery and
// background execution are provided by other packages.
package tracking
