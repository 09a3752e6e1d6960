// Package merge collapses chunks that are interchangeable and drops chunks
// that pruning left empty.
package merge
