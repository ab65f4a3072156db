// Package topology holds the wiring rules of the pipeline graph: plugs
// between sockets, flow membership, definition versions, and the join or
// race decision taken when a plug delivers.
//
// Functions run inside a store transaction supplied by the caller. They do
// not authorise; that is the core service's job.
package topology
