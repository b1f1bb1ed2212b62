package market

import (
	"sort"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"fleamarket.gg/internal/sim/catalogs"
)

// SortKey selects the ordering applied to a search result page.
type SortKey int

const (
	SortByID SortKey = iota
	SortByBarter
	SortByRating
	SortByName
	SortByPrice
	SortByExpiry
)

const nameCacheSize = 4096

// Sorter orders offer snapshots. Name ordering is locale-aware and display
// names are memoized, because name sorts dominate the query mix and the
// locale lookup plus fallback path is the expensive part.
type Sorter struct {
	cats  *catalogs.Catalogs
	tag   language.Tag
	names *lru.Cache
}

func NewSorter(cats *catalogs.Catalogs) *Sorter {
	cache, _ := lru.New(nameCacheSize)
	tag, err := language.Parse(cats.Locales.Locale)
	if err != nil {
		tag = language.English
	}
	return &Sorter{cats: cats, tag: tag, names: cache}
}

// Sort orders offers in place. The ascending order is always produced first
// with a stable tie-break on the numeric offer id, so the descending order is
// exactly the reverse of the ascending one.
func (s *Sorter) Sort(offers []*Offer, key SortKey, desc bool) {
	var less func(a, b *Offer) bool
	switch key {
	case SortByBarter:
		less = func(a, b *Offer) bool {
			ab, bb := a.IsBarter(), b.IsBarter()
			if ab != bb {
				return !ab
			}
			return a.IntID < b.IntID
		}
	case SortByRating:
		less = func(a, b *Offer) bool {
			if a.User.Rating != b.User.Rating {
				return a.User.Rating < b.User.Rating
			}
			return a.IntID < b.IntID
		}
	case SortByName:
		// Collators are not safe for concurrent use, so each call gets its
		// own.
		coll := collate.New(s.tag)
		less = func(a, b *Offer) bool {
			an, bn := s.displayName(a.Items[0].Tpl), s.displayName(b.Items[0].Tpl)
			if c := coll.CompareString(an, bn); c != 0 {
				return c < 0
			}
			return a.IntID < b.IntID
		}
	case SortByPrice:
		less = func(a, b *Offer) bool {
			if a.RequirementsCost != b.RequirementsCost {
				return a.RequirementsCost < b.RequirementsCost
			}
			return a.IntID < b.IntID
		}
	case SortByExpiry:
		less = func(a, b *Offer) bool {
			if a.EndTime != b.EndTime {
				return a.EndTime < b.EndTime
			}
			return a.IntID < b.IntID
		}
	default:
		less = func(a, b *Offer) bool { return a.IntID < b.IntID }
	}

	sort.SliceStable(offers, func(i, j int) bool { return less(offers[i], offers[j]) })
	if desc {
		for i, j := 0, len(offers)-1; i < j; i, j = i+1, j-1 {
			offers[i], offers[j] = offers[j], offers[i]
		}
	}
}

// displayName resolves a template's localized name, falling back to the raw
// template id when the locale table has no entry.
func (s *Sorter) displayName(tpl string) string {
	if v, ok := s.names.Get(tpl); ok {
		return v.(string)
	}
	name, ok := s.cats.DisplayName(tpl)
	if !ok {
		name = tpl
	}
	s.names.Add(tpl, name)
	return name
}
