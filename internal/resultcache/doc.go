// Package resultcache caches expensive derived artifacts keyed by their
// input text.
//
// Cached artifacts (synthesized audio, derived analyses) are pure functions
// of their input, so entries never expire and reuse is always safe; there is
// no TTL or eviction policy. Writes are upserts; a read miss never triggers
// regeneration, it simply falls through to the caller.
//
// # Storage
//
// The cache is stored as a single JSON file at a configurable path (default:
// ~/.cache/muse/artifacts.json). Binary payloads are base64-encoded by the
// JSON round trip. When constructed with an empty path the cache is a no-op,
// which keeps call sites free of conditionals.
package resultcache
