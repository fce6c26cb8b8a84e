// Package binxml reads template definitions out of the binary XML stored in
// an EVTX chunk. Definitions keep sub-slices of the chunk buffer instead of
// copying, so they are only valid while that buffer is alive.
package binxml
