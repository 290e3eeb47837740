package testsupport

import (
	"testing"

	"muse/internal/config"
	"muse/internal/library"
	"muse/internal/resultcache"
)

// MustOpenLibrary opens a library.Store for tests and registers cleanup.
func MustOpenLibrary(t testing.TB, cfg *config.Config) *library.Store {
	t.Helper()

	store, err := library.Open(cfg)
	if err != nil {
		t.Fatalf("library.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewArtifactCache constructs a result cache rooted in the test config's cache dir.
func NewArtifactCache(t testing.TB, cfg *config.Config) *resultcache.Cache {
	t.Helper()
	return resultcache.New(cfg.ArtifactCachePath(), nil)
}
