package identifier

import (
	"regexp"
	"strings"
	"testing"
)

var idPattern = regexp.MustCompile(`^ds_[0-9a-f]{12}$`)

func TestNewFormat(t *testing.T) {
	id := New(PrefixDataSource)
	if !idPattern.MatchString(id) {
		t.Errorf("New(ds) = %q, want ds_ followed by 12 lowercase hex chars", id)
	}
}

func TestNewPrefixes(t *testing.T) {
	for _, prefix := range []string{PrefixDataSource, PrefixApp, PrefixPage} {
		id := New(prefix)
		if !strings.HasPrefix(id, prefix+"_") {
			t.Errorf("New(%q) = %q, missing prefix", prefix, id)
		}
		if len(id) != len(prefix)+1+12 {
			t.Errorf("New(%q) = %q, wrong length %d", prefix, id, len(id))
		}
	}
}

func TestNewIsRandom(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := New(PrefixApp)
		if seen[id] {
			t.Fatalf("duplicate identifier after %d draws: %s", i, id)
		}
		seen[id] = true
	}
}
