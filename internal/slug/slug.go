// Package slug derives stable, URL-safe document identifiers and ranks
// nearby slugs for not-found suggestions.
package slug

import (
	"regexp"
	"sort"
	"strings"
)

var (
	nonSlugChars    = regexp.MustCompile(`[^a-z0-9-]`)
	repeatedHyphens = regexp.MustCompile(`-+`)
)

// Make derives a slug from a topic name. The derivation is deterministic:
// the same name always yields the same slug.
func Make(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")
	s = nonSlugChars.ReplaceAllString(s, "")
	s = repeatedHyphens.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	// Slugs must start with a letter so they remain valid identifiers
	// for downstream tool naming.
	if s != "" && (s[0] < 'a' || s[0] > 'z') {
		s = "doc-" + s
	}
	if s == "" {
		return "documentation"
	}
	return s
}

// Nearest returns up to limit candidates ranked by closeness to target.
// Exact prefix matches rank first, then substring matches, then edit
// distance; ties break lexically so output is deterministic.
func Nearest(target string, candidates []string, limit int) []string {
	if len(candidates) == 0 || limit <= 0 {
		return nil
	}

	target = strings.ToLower(target)

	type scored struct {
		slug string
		rank int
		dist int
	}

	items := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		lc := strings.ToLower(c)
		rank := 3
		switch {
		case strings.HasPrefix(lc, target) || strings.HasPrefix(target, lc):
			rank = 1
		case strings.Contains(lc, target) || strings.Contains(target, lc):
			rank = 2
		}
		items = append(items, scored{slug: c, rank: rank, dist: editDistance(target, lc)})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].rank != items[j].rank {
			return items[i].rank < items[j].rank
		}
		if items[i].dist != items[j].dist {
			return items[i].dist < items[j].dist
		}
		return items[i].slug < items[j].slug
	})

	if limit > len(items) {
		limit = len(items)
	}
	out := make([]string, limit)
	for i := 0; i < limit; i++ {
		out[i] = items[i].slug
	}
	return out
}

// editDistance computes the Levenshtein distance between two strings.
func editDistance(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
