// Package config loads optimization settings from CUE.
//
// A config file is checked against an embedded schema (schema.cue) before
// values are read, so unknown fields and type errors are reported with
// their CUE position:
//
//	optimization: {
//		mergeDuplicateChunks: true
//		workers: 4
//		splitChunks: cacheGroups: vendors: {
//			test:      "^node_modules/"
//			chunks:    "all"
//			minSize:   {javascript: 1000}
//			priority:  10
//			name:      "vendors"
//		}
//	}
//
// Custom chunk predicates cannot be expressed in CUE; set
// splitchunks.CacheGroup.ChunkFilter from Go instead.
package config
