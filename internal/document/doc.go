// Package document implements the canonical document model operations:
// insert, replace, reorder, move and remove over zones, plus zone addressing
// (lookup, flatten, cascade pruning) and hydration of persisted payloads.
//
// Every function is pure. A Document passed in is never mutated; the returned
// value shares the slices of zones that were not touched, so callers can detect
// changes by comparing slice identity. Operations that are not meaningful
// (out-of-range index, unknown zone, duplicate id) return the input unchanged
// together with ok == false instead of failing.
package document
