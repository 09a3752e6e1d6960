package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainModuleGraph = "chunkgraph/module-graph/v1"
	DomainModule      = "chunkgraph/module/v1"
	DomainSignature   = "chunkgraph/signature/v1"
	DomainChunkName   = "chunkgraph/chunk-name/v1"
	DomainEngine      = "chunkgraph/engine-options/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashCanonical hashes any canonical-JSON-encodable value under domain.
func HashCanonical(domain string, v any) (string, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return hashWithDomain(domain, data), nil
}

// GraphHash computes the content hash of a whole module graph, used
// exports included. Two graphs with the same hash produce identical chunk
// graphs under the same engine options.
func GraphHash(g *ModuleGraph) (string, error) {
	entries := make([]any, len(g.Entries))
	for i, e := range g.Entries {
		entries[i] = map[string]any{
			"name":         e.Name,
			"dependencies": idList(e.Dependencies),
			"depend_on":    e.DependOn,
			"runtime":      e.Runtime,
		}
	}
	modules := make([]any, 0, len(g.Modules))
	for _, id := range g.ModuleIDs() {
		m, _ := g.Module(id)
		obj := moduleObject(m)
		obj["used_exports"] = usedExportsObject(m)
		modules = append(modules, obj)
	}
	blocks := make([]any, len(g.Blocks))
	for i, b := range g.Blocks {
		obj := map[string]any{
			"id":             b.ID,
			"chunk_name":     b.ChunkName,
			"dependencies":   idList(b.Dependencies),
			"preload_order":  b.PreloadOrder,
			"prefetch_order": b.PrefetchOrder,
		}
		if b.Entry != nil {
			obj["entry"] = map[string]any{"name": b.Entry.Name, "runtime": b.Entry.Runtime}
		}
		blocks[i] = obj
	}
	return HashCanonical(DomainModuleGraph, map[string]any{
		"entries": entries,
		"modules": modules,
		"blocks":  blocks,
	})
}

// ModuleHash computes the hash of a module as seen by one runtime.
func ModuleHash(m *Module, runtime string) (string, error) {
	obj := moduleObject(m)
	obj["runtime"] = runtime
	if used, ok := m.UsedExports[runtime]; ok {
		obj["used"] = used
	} else {
		obj["used"] = "*"
	}
	return HashCanonical(DomainModule, obj)
}

// ShortHash returns the first 8 hex characters of the hash of ids.
// Used for generated chunk names.
func ShortHash(ids []ModuleID) string {
	data, err := MarshalCanonical(idList(ids))
	if err != nil {
		// id lists are always encodable
		panic(err)
	}
	return hashWithDomain(DomainChunkName, data)[:8]
}

func moduleObject(m *Module) map[string]any {
	sizes := make(map[string]any, len(m.Sizes))
	for k, v := range m.Sizes {
		sizes[string(k)] = v
	}
	blocks := make([]any, len(m.Blocks))
	for i, b := range m.Blocks {
		blocks[i] = b
	}
	return map[string]any{
		"id":           m.ID,
		"type":         m.Type,
		"layer":        m.Layer,
		"sizes":        sizes,
		"dependencies": idList(m.Dependencies),
		"blocks":       blocks,
	}
}

// usedExportsObject keys each runtime's export list, sorted. A runtime with
// an empty list stays distinct from an absent one (unknown usage).
func usedExportsObject(m *Module) map[string]any {
	out := make(map[string]any, len(m.UsedExports))
	for rt, used := range m.UsedExports {
		sorted := append([]string{}, used...)
		sort.Strings(sorted)
		out[rt] = sorted
	}
	return out
}

func idList(ids []ModuleID) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
