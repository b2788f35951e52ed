// Package resolve recomputes field schemas and normalized props of blocks
// and page settings when their values change. Resolvers run in goroutines;
// results reach the document only through the apply callback, and only when
// they are still the latest for their target.
package resolve
