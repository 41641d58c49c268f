package catalog

import (
	"slices"
	"strings"

	"github.com/thoas/go-funk"
)

// Filter selects catalog entries. Zero value selects every entry with values.
type Filter struct {
	// Names is an allow-list of entry names.
	Names []string
	// Annotations maps an annotation key to the exact set an entry must carry.
	Annotations map[string][]string
}

// NewFilter builds a filter from raw lists, ignoring blank items.
func NewFilter(names, technologies, categories, others []string) Filter {
	f := Filter{
		Names:       clean(names),
		Annotations: map[string][]string{},
	}
	if t := clean(technologies); len(t) > 0 {
		f.Annotations[AnnotationTechnology] = t
	}
	if c := clean(categories); len(c) > 0 {
		f.Annotations[AnnotationCategory] = c
	}
	if o := clean(others); len(o) > 0 {
		f.Annotations[AnnotationOthers] = o
	}
	return f
}

// Match reports whether spec passes every active filter. Annotation filters
// use set equality: an entry annotated [go, java] does not match [go].
func (f Filter) Match(spec Spec) bool {
	if len(spec.Values) == 0 {
		return false
	}
	if len(f.Names) > 0 && !funk.ContainsString(f.Names, spec.Name) {
		return false
	}
	for key, want := range f.Annotations {
		if len(want) == 0 {
			continue
		}
		if !sameSet(want, spec.Annotations[key]) {
			return false
		}
	}
	return true
}

// Requires reports whether the active filter on key contains value, which
// then holds for every selected entry.
func (f Filter) Requires(key, value string) bool {
	return funk.ContainsString(f.Annotations[key], value)
}

// Select returns the matching entries in document order.
func (f Filter) Select(doc *Document) []Spec {
	selected := make([]Spec, 0, len(doc.Jobs))
	for _, spec := range doc.Jobs {
		if f.Match(spec) {
			selected = append(selected, spec)
		}
	}
	return selected
}

func sameSet(a, b []string) bool {
	x := funk.UniqString(clean(a))
	y := funk.UniqString(clean(b))
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}

func clean(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
