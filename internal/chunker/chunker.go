// Package chunker splits document summaries into self-contained,
// deduplicated sections sized for granular retrieval.
package chunker

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/docfoundry/docfoundry/internal/slug"
)

// Options configures chunking behavior.
type Options struct {
	// MaxSectionSize is the target maximum section length in characters.
	// A section holding an unsplittable code fence may exceed it.
	MaxSectionSize int

	// DedupThreshold is the shingle-overlap ratio above which two sections
	// are considered restatements of the same concept and merged.
	DedupThreshold float64

	// ShingleSize is the token count per shingle for overlap detection.
	ShingleSize int
}

// DefaultOptions returns the documented default chunking options.
func DefaultOptions() Options {
	return Options{
		MaxSectionSize: 2000,
		DedupThreshold: 0.82,
		ShingleSize:    4,
	}
}

// Section is a topic-scoped fragment of a document.
type Section struct {
	ID       string
	Title    string
	Content  string
	Position int
	Keywords []string
}

// Warning reports a non-fatal chunking condition, such as a code fence
// that forced a section over the size limit.
type Warning struct {
	SectionTitle string
	Message      string
}

// Chunk splits a document's full summary into ordered sections. Each section
// stays under MaxSectionSize unless an intact code fence forces it over
// (reported as a Warning). Near-duplicate sections merge, keeping the union
// of their unique sentences. The output is deterministic for a fixed input.
func Chunk(docTitle, summary string, opts Options) ([]Section, []Warning) {
	if opts.MaxSectionSize <= 0 {
		opts.MaxSectionSize = DefaultOptions().MaxSectionSize
	}
	if opts.DedupThreshold <= 0 {
		opts.DedupThreshold = DefaultOptions().DedupThreshold
	}
	if opts.ShingleSize <= 0 {
		opts.ShingleSize = DefaultOptions().ShingleSize
	}

	raw := parseTopics(docTitle, summary)

	var warnings []Warning
	var parts []part
	for _, topic := range raw {
		parts = append(parts, splitTopic(topic, opts.MaxSectionSize, &warnings)...)
	}

	parts = mergeNearDuplicates(parts, opts)
	parts = dropRepeatedSentences(parts)

	sections := make([]Section, 0, len(parts))
	for i, p := range parts {
		body := contextualize(docTitle, p.title, p.body())
		sections = append(sections, Section{
			ID:       fmt.Sprintf("s%02d-%s", i+1, slug.Make(p.title)),
			Title:    p.title,
			Content:  body,
			Position: i + 1,
			Keywords: Keywords(body),
		})
	}
	return sections, warnings
}

// block is a paragraph or an intact code fence.
type block struct {
	text    string
	isFence bool
}

// part is a section under construction.
type part struct {
	title  string
	blocks []block
}

func (p part) body() string {
	texts := make([]string, len(p.blocks))
	for i, b := range p.blocks {
		texts[i] = b.text
	}
	return strings.Join(texts, "\n\n")
}

func (p part) size() int {
	n := 0
	for _, b := range p.blocks {
		n += len(b.text) + 2
	}
	return n
}

func (p part) fenceCount() int {
	n := 0
	for _, b := range p.blocks {
		if b.isFence {
			n++
		}
	}
	return n
}

var headingRe = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)

// parseTopics splits markdown into heading-delimited topics, keeping code
// fences intact. Text before the first heading becomes an "Overview" topic.
func parseTopics(docTitle, summary string) []part {
	lines := strings.Split(summary, "\n")

	var topics []part
	current := part{title: "Overview"}
	var para []string
	var fence []string
	inFence := false

	flushPara := func() {
		text := strings.TrimSpace(strings.Join(para, "\n"))
		para = para[:0]
		if text != "" {
			current.blocks = append(current.blocks, block{text: text})
		}
	}
	flushTopic := func() {
		flushPara()
		if len(current.blocks) > 0 {
			topics = append(topics, current)
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			if inFence {
				fence = append(fence, line)
				current.blocks = append(current.blocks, block{text: strings.Join(fence, "\n"), isFence: true})
				fence = fence[:0]
				inFence = false
			} else {
				flushPara()
				fence = append(fence, line)
				inFence = true
			}
			continue
		}
		if inFence {
			fence = append(fence, line)
			continue
		}

		if m := headingRe.FindStringSubmatch(trimmed); m != nil {
			title := strings.TrimSpace(m[2])
			// The document-level H1 names the topic we already know;
			// it does not open a section of its own.
			if len(m[1]) == 1 && strings.EqualFold(title, docTitle) && len(topics) == 0 && len(current.blocks) == 0 {
				continue
			}
			flushTopic()
			current = part{title: title}
			continue
		}

		if trimmed == "" {
			flushPara()
			continue
		}
		para = append(para, line)
	}

	// Unterminated fence: keep what we saw rather than losing it.
	if inFence && len(fence) > 0 {
		current.blocks = append(current.blocks, block{text: strings.Join(fence, "\n"), isFence: true})
	}
	flushTopic()

	return topics
}

// splitTopic breaks an oversized topic into size-bounded parts at block
// boundaries. A lone fence larger than max stays intact and is reported.
func splitTopic(topic part, max int, warnings *[]Warning) []part {
	if topic.size() <= max {
		return []part{topic}
	}

	var out []part
	current := part{title: topic.title}
	seq := 1

	flush := func() {
		if len(current.blocks) == 0 {
			return
		}
		out = append(out, current)
		seq++
		current = part{title: fmt.Sprintf("%s (part %d)", topic.title, seq)}
	}

	for _, b := range topic.blocks {
		if len(b.text) > max {
			if b.isFence {
				// Correctness over strict limits: never split a fence.
				*warnings = append(*warnings, Warning{
					SectionTitle: topic.title,
					Message:      fmt.Sprintf("code fence of %d chars exceeds max section size %d; kept intact", len(b.text), max),
				})
				if current.size() > 0 {
					flush()
				}
				current.blocks = append(current.blocks, b)
				flush()
				continue
			}
			// Oversized prose splits at sentence boundaries.
			for _, chunk := range splitProse(b.text, max) {
				if current.size()+len(chunk) > max && len(current.blocks) > 0 {
					flush()
				}
				current.blocks = append(current.blocks, block{text: chunk})
			}
			continue
		}

		if current.size()+len(b.text) > max && len(current.blocks) > 0 {
			flush()
		}
		current.blocks = append(current.blocks, b)
	}
	flush()

	return out
}

// splitProse splits a long paragraph into chunks of at most max characters
// at sentence boundaries. A single sentence longer than max is split again
// at word boundaries; only code fences may exceed the bound.
func splitProse(text string, max int) []string {
	sentences := SplitSentences(text)

	var out []string
	var sb strings.Builder
	flush := func() {
		if sb.Len() > 0 {
			out = append(out, sb.String())
			sb.Reset()
		}
	}
	for _, s := range sentences {
		if len(s) > max {
			flush()
			out = append(out, splitWords(s, max)...)
			continue
		}
		if sb.Len() > 0 && sb.Len()+len(s)+1 > max {
			flush()
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(s)
	}
	flush()
	return out
}

// splitWords splits an overlong sentence into chunks of at most max
// characters at word boundaries. Words longer than max are cut hard.
func splitWords(s string, max int) []string {
	var out []string
	var sb strings.Builder
	for _, w := range strings.Fields(s) {
		for len(w) > max {
			if sb.Len() > 0 {
				out = append(out, sb.String())
				sb.Reset()
			}
			out = append(out, w[:max])
			w = w[max:]
		}
		if w == "" {
			continue
		}
		if sb.Len() > 0 && sb.Len()+1+len(w) > max {
			out = append(out, sb.String())
			sb.Reset()
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(w)
	}
	if sb.Len() > 0 {
		out = append(out, sb.String())
	}
	return out
}

// mergeNearDuplicates collapses parts whose normalized text overlap exceeds
// the threshold. The survivor is the variant with more code fences, then the
// longer one; the other part's unique sentences are appended so no detail is
// lost.
func mergeNearDuplicates(parts []part, opts Options) []part {
	var kept []part
	for _, p := range parts {
		merged := false
		for i := range kept {
			if shingleOverlap(kept[i].body(), p.body(), opts.ShingleSize) >= opts.DedupThreshold {
				kept[i] = mergeParts(kept[i], p)
				merged = true
				break
			}
		}
		if !merged {
			kept = append(kept, p)
		}
	}
	return kept
}

// mergeParts folds the losing near-duplicate into the winner, appending
// sentences and fences the winner does not already contain.
func mergeParts(a, b part) part {
	winner, loser := a, b
	if b.fenceCount() > a.fenceCount() ||
		(b.fenceCount() == a.fenceCount() && len(b.body()) > len(a.body())) {
		winner, loser = b, a
		winner.title = a.title // earliest title names the merged section
	}

	seen := make(map[string]bool)
	for _, s := range SplitSentences(winner.body()) {
		seen[normalizeText(s)] = true
	}

	var extras []string
	for _, lb := range loser.blocks {
		if lb.isFence {
			if !strings.Contains(winner.body(), lb.text) {
				winner.blocks = append(winner.blocks, lb)
			}
			continue
		}
		for _, s := range SplitSentences(lb.text) {
			if norm := normalizeText(s); norm != "" && !seen[norm] {
				seen[norm] = true
				extras = append(extras, s)
			}
		}
	}
	if len(extras) > 0 {
		winner.blocks = append(winner.blocks, block{text: strings.Join(extras, " ")})
	}
	return winner
}

// dropRepeatedSentences removes prose sentences that already appeared
// verbatim in an earlier section. Fences are never touched.
func dropRepeatedSentences(parts []part) []part {
	seen := make(map[string]bool)

	out := make([]part, 0, len(parts))
	for _, p := range parts {
		var blocks []block
		for _, b := range p.blocks {
			if b.isFence {
				blocks = append(blocks, b)
				continue
			}
			var uniq []string
			for _, s := range SplitSentences(b.text) {
				norm := normalizeText(s)
				if norm == "" || seen[norm] {
					continue
				}
				seen[norm] = true
				uniq = append(uniq, s)
			}
			if len(uniq) > 0 {
				blocks = append(blocks, block{text: strings.Join(uniq, " ")})
			}
		}
		if len(blocks) > 0 {
			p.blocks = blocks
			out = append(out, p)
		}
	}
	return out
}

// contextualize prefixes a short restated clause when a section's body never
// mentions its document topic, so the fragment reads on its own.
func contextualize(docTitle, title, body string) string {
	if docTitle == "" || mentionsTopic(body, docTitle) {
		return body
	}
	return fmt.Sprintf("%s, %s.\n\n%s", docTitle, title, body)
}

// mentionsTopic reports whether text contains any significant word of topic.
func mentionsTopic(text, topic string) bool {
	lower := strings.ToLower(text)
	for _, word := range strings.Fields(strings.ToLower(topic)) {
		if len(word) < 4 {
			continue
		}
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// SplitSentences splits prose into sentences on terminator-plus-space
// boundaries. Line breaks also terminate sentences.
func SplitSentences(text string) []string {
	var out []string
	var sb strings.Builder

	flush := func() {
		s := strings.TrimSpace(sb.String())
		sb.Reset()
		if s != "" {
			out = append(out, s)
		}
	}

	runes := []rune(text)
	for i, r := range runes {
		sb.WriteRune(r)
		switch r {
		case '.', '!', '?':
			if i == len(runes)-1 || runes[i+1] == ' ' || runes[i+1] == '\n' {
				flush()
			}
		case '\n':
			flush()
		}
	}
	flush()
	return out
}

// normalizeText lowercases and strips punctuation for comparison.
func normalizeText(s string) string {
	return strings.Join(tokenize(s), " ")
}

// tokenize lowercases and splits text into alphanumeric tokens.
func tokenize(s string) []string {
	var tokens []string
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
			continue
		}
		if sb.Len() > 0 {
			tokens = append(tokens, sb.String())
			sb.Reset()
		}
	}
	if sb.Len() > 0 {
		tokens = append(tokens, sb.String())
	}
	return tokens
}

// shingleOverlap computes the Jaccard similarity of token shingles between
// two texts. Returns a value in [0,1].
func shingleOverlap(a, b string, n int) float64 {
	sa := shingles(tokenize(a), n)
	sb := shingles(tokenize(b), n)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}

	inter := 0
	for s := range sa {
		if sb[s] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// shingles returns the set of n-token windows over tokens. Inputs shorter
// than n yield a single shingle of the whole token list.
func shingles(tokens []string, n int) map[string]bool {
	set := make(map[string]bool)
	if len(tokens) == 0 {
		return set
	}
	if len(tokens) < n {
		set[strings.Join(tokens, " ")] = true
		return set
	}
	for i := 0; i+n <= len(tokens); i++ {
		set[strings.Join(tokens[i:i+n], " ")] = true
	}
	return set
}

var (
	backtickRe  = regexp.MustCompile("`([^`\n]+)`")
	dottedRe    = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)+\b`)
	camelRe     = regexp.MustCompile(`\b[a-z]+[A-Z][A-Za-z0-9]*\b`)
	snakeRe     = regexp.MustCompile(`\b[a-z][a-z0-9]*_[a-z0-9_]+\b`)
	fenceLangRe = regexp.MustCompile("(?m)^```([a-zA-Z0-9+-]+)$")
)

// maxKeywords bounds the derived keyword set per section.
const maxKeywords = 32

// Keywords derives a deterministic keyword set from section content:
// inline code terms, dotted and camelCase identifiers, snake_case names,
// and fence language tags. The result is deduplicated and sorted.
func Keywords(content string) []string {
	set := make(map[string]bool)

	add := func(term string) {
		term = strings.TrimSpace(term)
		if len(term) < 2 || len(term) > 64 {
			return
		}
		set[term] = true
	}

	for _, m := range backtickRe.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	for _, m := range dottedRe.FindAllString(content, -1) {
		add(m)
	}
	for _, m := range camelRe.FindAllString(content, -1) {
		add(m)
	}
	for _, m := range snakeRe.FindAllString(content, -1) {
		add(m)
	}
	for _, m := range fenceLangRe.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}

	if len(set) == 0 {
		return nil
	}
	keywords := make([]string, 0, len(set))
	for k := range set {
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)
	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}
	return keywords
}
