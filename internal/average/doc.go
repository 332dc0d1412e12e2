// Package average drives iterative particle averaging.
//
// A Controller owns the localization store and a fixed-size worker pool that
// is created once per loaded dataset. Each iteration renders the whole store
// into a frozen reference, aligns every group against it on the pool, then
// recentres the store once. Progress is streamed to the caller as Events.
//
// Concurrency model: groups partition the localization indices and a worker
// is always handed whole groups, so workers write disjoint parts of the
// store without locks. The reference spectrum, group index and angle grid
// are read-only during an iteration. The per-iteration progress counter is
// the only shared mutable value and is updated atomically.
//
// Cancellation is checked between groups, never inside one; a cancelled
// iteration leaves every group either fully updated or untouched and is not
// recentred.
package average
