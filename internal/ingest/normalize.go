// Package ingest implements the batch ingestion coordinator: payload
// normalization, per-category dedup-aware persistence, daily aggregation,
// and the hand-off to risk evaluation.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Bare local layouts the agents are known to emit when they drop the offset.
var bareLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseAgentTimestamp normalizes an agent timestamp to UTC. It tries
// offset-qualified ISO-8601 first, then bare local time interpreted as UTC.
// When both fail it substitutes now; ok is false so callers can surface the
// substitution as a data-quality signal. One bad timestamp never fails a batch.
func ParseAgentTimestamp(raw string, now time.Time) (ts time.Time, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.UTC(), false
	}
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return parsed.UTC(), true
	}
	for _, layout := range bareLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return parsed, true
		}
	}
	return now.UTC(), false
}

// HashPath returns the SHA-256 hex digest of a file path. Raw paths are never
// persisted; an empty input hashes to an empty output.
func HashPath(path string) string {
	if path == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])
}

// fileExt extracts the extension (without the dot) from a file name.
func fileExt(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 && i+1 < len(name) {
		return name[i+1:]
	}
	return ""
}
