// Package locs owns the localization data model used by the averaging engine.
//
// Responsibilities: the column-oriented localization set, the immutable
// group index that partitions point indices by group, and the loader
// preconditions (per-group centre-of-mass alignment, global recentring and
// the bounding radius).
// Key types: Set, GroupIndex.
//
// Dependency rule: locs depends on nothing else in this module.
// No rendering or correlation code is allowed in this package.
package locs
