// Package mirror keeps denormalized copies of an entity consistent. A logical
// change is written to every mirror (team, global, customer) concurrently;
// mirrors whose document id is not known up front are found with a Locator.
package mirror

import (
	"context"
	"fmt"
	"strconv"

	"github.com/alecgard/liftline/internal/docstore"
	"github.com/alecgard/liftline/internal/model"
)

// Locator finds a mirror's opaque document id by scanning a collection for a
// document whose natural-key fields match. There is no index or cache: each
// call reads the whole collection.
type Locator struct {
	store docstore.Store
}

// NewLocator creates a Locator over store.
func NewLocator(store docstore.Store) *Locator {
	return &Locator{store: store}
}

// Locate returns the id of the first document in collection whose fields
// equal every entry of key, or "" when nothing matches. An empty key never
// matches.
func (l *Locator) Locate(ctx context.Context, collection string, key map[string]string) (string, error) {
	if len(key) == 0 {
		return "", nil
	}
	docs, err := l.store.Query(ctx, collection)
	if err != nil {
		return "", fmt.Errorf("scanning %s: %w", collection, err)
	}
	for _, d := range docs {
		if matches(d.Data, key) {
			return d.ID, nil
		}
	}
	return "", nil
}

// GlobalSite returns a Target for the global copy of site, located by its
// natural key.
func (l *Locator) GlobalSite(site model.Site) Target {
	key := SiteKey(site)
	return Located(MirrorGlobal, func(ctx context.Context) (string, error) {
		id, err := l.Locate(ctx, docstore.GlobalSitesPath, key)
		if err != nil || id == "" {
			return "", err
		}
		return docstore.GlobalSitePath(id), nil
	})
}

// SiteKey is the natural key linking a team site to its global copy.
func SiteKey(site model.Site) map[string]string {
	key := map[string]string{}
	if site.OwnerEmail != "" {
		key["ownerEmail"] = site.OwnerEmail
	}
	if site.LiftID != "" {
		key["liftId"] = site.LiftID
	}
	if site.SiteAddress != "" {
		key["siteAddress"] = site.SiteAddress
	}
	return key
}

func matches(data map[string]any, key map[string]string) bool {
	for field, want := range key {
		got, ok := data[field]
		if !ok || scalarString(got) != want {
			return false
		}
	}
	return true
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
