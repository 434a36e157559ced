package testsupport

import (
	"testing"

	"reembed/internal/config"
	"reembed/internal/rules"
)

// MustOpenRules opens the rule store at cfg's rules path, seeds it with doc
// when non-empty, and registers cleanup.
func MustOpenRules(t testing.TB, cfg *config.Config, doc string) *rules.Store {
	t.Helper()

	store, err := rules.Open(cfg.Paths.RulesPath)
	if err != nil {
		t.Fatalf("rules.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	if doc != "" {
		if err := store.Edit(doc); err != nil {
			t.Fatalf("seed rules: %v", err)
		}
	}
	return store
}
