package tagfilter

import (
	"sort"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/tourmap-app/tourmap"
)

// TagSet is a set of "key" and "key:value" strings
type TagSet map[string]struct{}

func newTagSet(tags ...[]string) TagSet {
	set := make(TagSet)
	for _, list := range tags {
		for _, tag := range list {
			set[tag] = struct{}{}
		}
	}
	return set
}

// Contains checks for an exact (case-sensitive) match
func (s TagSet) Contains(tag string) bool {
	_, ok := s[tag]
	return ok
}

// Matches reports whether any of the tags matches the set, by exact key or exact "key:value"
func (s TagSet) Matches(tags map[string]string) bool {
	for key, value := range tags {
		if s.Contains(key) || s.Contains(key+":"+value) {
			return true
		}
	}
	return false
}

// Sorted returns the tags of the set in a stable order
func (s TagSet) Sorted() []string {
	var tags []string
	for tag := range s {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Taxonomy is an ordered list of categories, with the derived tag sets computed once
type Taxonomy struct {
	categories  []Category
	byName      map[string]TagSet
	allowedTags TagSet
	allowed     []string
}

// NewTaxonomy builds a taxonomy. defaultAllowed names the categories making up the default allowed set.
func NewTaxonomy(categories []Category, defaultAllowed []string) (*Taxonomy, errorsx.Error) {
	byName := make(map[string]TagSet, len(categories))
	for _, category := range categories {
		if category.Name == "" {
			return nil, errorsx.Errorf("category with empty name")
		}
		if _, ok := byName[category.Name]; ok {
			return nil, errorsx.Errorf("duplicate category %q", category.Name)
		}
		byName[category.Name] = newTagSet(category.Tags)
	}

	t := &Taxonomy{
		categories: categories,
		byName:     byName,
		allowed:    defaultAllowed,
	}

	allowedTags, err := t.FilterSet(defaultAllowed)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}
	t.allowedTags = allowedTags

	return t, nil
}

// NewDefaultTaxonomy returns the compiled-in taxonomy
func NewDefaultTaxonomy() *Taxonomy {
	t, err := NewTaxonomy(DefaultCategories, DefaultAllowedCategories)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Taxonomy) Categories() []Category {
	return t.categories
}

func (t *Taxonomy) DefaultAllowedCategories() []string {
	return t.allowed
}

// AllowedTags is the union of the default allowed categories' tags
func (t *Taxonomy) AllowedTags() TagSet {
	return t.allowedTags
}

// FilterSet returns the union of the named categories' tags.
// An empty list of interests gives the default allowed set.
func (t *Taxonomy) FilterSet(interests []string) (TagSet, errorsx.Error) {
	if len(interests) == 0 && t.allowedTags != nil {
		return t.allowedTags, nil
	}

	set := make(TagSet)
	for _, name := range interests {
		categorySet, ok := t.byName[name]
		if !ok {
			return nil, errorsx.Errorf("unknown category %q", name)
		}
		for tag := range categorySet {
			set[tag] = struct{}{}
		}
	}

	return set, nil
}

// IsAllowed reports whether an element passes the default allowed set
func (t *Taxonomy) IsAllowed(el *tourmap.Element) bool {
	return t.allowedTags.Matches(el.Tags)
}

// Group returns the first category any of the tags matches, or "Other".
// Being grouped as "Other" says nothing about whether the element is allowed.
func (t *Taxonomy) Group(tags map[string]string) string {
	for _, category := range t.categories {
		if t.byName[category.Name].Matches(tags) {
			return category.Name
		}
	}
	return CategoryOther
}

// Filter returns the elements matching the filter set for the interests, keeping their order
func (t *Taxonomy) Filter(elements []*tourmap.Element, interests []string) ([]*tourmap.Element, errorsx.Error) {
	set, err := t.FilterSet(interests)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	var matching []*tourmap.Element
	for _, el := range elements {
		if set.Matches(el.Tags) {
			matching = append(matching, el)
		}
	}

	return matching, nil
}
