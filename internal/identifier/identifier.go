// Package identifier generates the short public identifiers used for
// data sources, apps, and pages.
package identifier

import (
	"strings"

	"github.com/google/uuid"
)

// MaxAttempts is the retry budget a creation path gets before giving up
// with a duplicate-identifier error. Generation itself never checks
// storage; uniqueness is enforced by the inserting store.
const MaxAttempts = 5

// Entity prefixes.
const (
	PrefixDataSource = "ds"
	PrefixApp        = "app"
	PrefixPage       = "page"
)

// New returns prefix + "_" + the first 12 hex characters of a random
// UUID, e.g. "ds_3f2a91c04b7e".
func New(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "_" + raw[:12]
}
