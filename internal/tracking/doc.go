// Package tracking owns identity assignment for per-frame person detections.
//
// Responsibilities: centroid extraction from bounding boxes, the track
// registry (register, update, deregister), greedy nearest-neighbour
// association gated by a maximum match distance, and disappearance-based
// expiry.
// Key types: BoundingBox, Centroid, Track, Tracker.
//
// Association is deliberately greedy rather than an optimal bipartite
// matching (Hungarian). Rows are served in order of their closest
// detection, each row only ever tries its single nearest column, and a row
// whose nearest column was already claimed stays unmatched for the frame.
// Swapping in an optimal solver changes which ids survive ambiguous
// crossings, so it is a behavioural change, not an optimisation.
//
// A Tracker is not safe for concurrent use. Frames must be fed in temporal
// order; each stream owns its own Tracker.
//
// No persistence or transport code is allowed in this package.
package tracking
