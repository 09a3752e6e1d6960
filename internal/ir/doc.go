// Package ir provides the module graph snapshot types consumed by the chunk
// graph engine.
//
// This package contains type definitions and canonical serialization only.
// All other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - The module graph is read-only for the duration of one computation
//   - Every iteration exposed to callers is in sorted or declaration order
//   - Content hashes use canonical JSON with domain separation (see hash.go)
//   - No float types anywhere; sizes are int64 byte-equivalents
package ir
