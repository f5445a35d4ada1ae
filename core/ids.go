package core

// PointOffset is a dense, internal identifier for a vector within a single
// segment. It is strictly 32-bit, allowing for max 4 Billion vectors per
// segment. External point IDs are mapped to offsets by an ID tracker that
// lives outside this module; all hot-path structures (posting lists, bitmaps,
// heaps) operate on offsets only.
type PointOffset uint32

// MaxPointOffset is the maximum possible value for a PointOffset.
const MaxPointOffset = ^PointOffset(0)

// DimID identifies one dimension of the sparse vector space.
type DimID uint32
