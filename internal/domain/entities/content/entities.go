// Package content defines the application's core content-related domain entities.
package content

import (
	"strings"
	"time"
)

// SharedScopeMarker is the scope prefix of site-wide content merged into every page.
const SharedScopeMarker = "shared"

// AllPagesMarker requests the page id listing instead of content.
const AllPagesMarker = "__all__"

// Scope is the namespace a flat key belongs to: one page, or the shared scope.
type Scope struct {
	pageID string
	shared bool
}

// PageScope returns the scope of a single page. Page ids are lowercased. An
// id containing the key separator "." yields the zero scope, since its keys
// would collide with another page's prefix.
func PageScope(pageID string) Scope {
	id := strings.ToLower(strings.TrimSpace(pageID))
	if strings.Contains(id, ".") {
		return Scope{}
	}
	return Scope{pageID: id}
}

// SharedScope returns the site-wide scope.
func SharedScope() Scope {
	return Scope{shared: true}
}

// ParseScope maps the shared marker to the shared scope and anything else to
// a page scope.
func ParseScope(raw string) Scope {
	if strings.EqualFold(strings.TrimSpace(raw), SharedScopeMarker) {
		return SharedScope()
	}
	return PageScope(raw)
}

func (s Scope) IsShared() bool { return s.shared }

// PageID returns the page id, or the shared marker for the shared scope.
func (s Scope) PageID() string { return s.Prefix() }

// Prefix is the scope prefix used in canonical flat keys.
func (s Scope) Prefix() string {
	if s.shared {
		return SharedScopeMarker
	}
	return s.pageID
}

// KeyPrefix is Prefix followed by the separator, the form used for prefix scans.
func (s Scope) KeyPrefix() string { return s.Prefix() + "." }

func (s Scope) String() string { return s.Prefix() }

// IsZero reports an empty page scope.
func (s Scope) IsZero() bool { return !s.shared && s.pageID == "" }

// FlatEntry is a single scalar leaf of a scope's content tree.
type FlatEntry struct {
	Scope Scope  `json:"-"`
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

// CanonicalKey is the fully qualified key persisted in the store and cache.
func (e FlatEntry) CanonicalKey() string {
	return e.Scope.KeyPrefix() + e.Key
}

// SplitCanonicalKey separates a canonical key into its scope and relative key.
func SplitCanonicalKey(canonical string) (Scope, string, bool) {
	prefix, rest, ok := strings.Cut(canonical, ".")
	if !ok || prefix == "" || rest == "" {
		return Scope{}, "", false
	}
	return ParseScope(prefix), rest, true
}

// ContentType distinguishes the two kinds of history snapshot.
type ContentType string

const (
	ContentTypeJSON ContentType = "json"
	ContentTypeCSS  ContentType = "css"
)

func (t ContentType) Valid() bool {
	return t == ContentTypeJSON || t == ContentTypeCSS
}

// HistoryEntry is an immutable snapshot of a scope taken before a write.
type HistoryEntry struct {
	ID          string      `json:"id"`
	Scope       Scope       `json:"-"`
	PageID      string      `json:"pageId"`
	ContentType ContentType `json:"contentType"`
	Payload     string      `json:"payload"`
	SavedAt     time.Time   `json:"savedAt"`
	CreatedBy   *string     `json:"createdBy,omitempty"`
}

// Summary drops the payload for listings.
func (h *HistoryEntry) Summary() HistorySummary {
	return HistorySummary{
		ID:        h.ID,
		SavedAt:   h.SavedAt,
		CreatedBy: h.CreatedBy,
	}
}

type HistorySummary struct {
	ID        string    `json:"id"`
	SavedAt   time.Time `json:"savedAt"`
	CreatedBy *string   `json:"createdBy,omitempty"`
}

// StyleBlob is a scope's CSS text, stored and cached as one opaque string.
type StyleBlob struct {
	Scope     Scope     `json:"-"`
	PageID    string    `json:"pageId"`
	CSS       string    `json:"css"`
	UpdatedAt time.Time `json:"updatedAt"`
}
