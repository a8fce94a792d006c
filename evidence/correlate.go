package evidence

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Correlate collapses raw retrieval hits so that each (source, chunk) key
// appears once. The first occurrence wins and first-seen order is preserved,
// which makes the operation idempotent.
func Correlate(raw []Passage) []Passage {
	seen := make(map[Key]struct{}, len(raw))
	result := make([]Passage, 0, len(raw))
	for _, p := range raw {
		key := p.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, p)
	}
	return result
}

// CountBuckets tallies passages per relevance bucket. Unknown or unrecognized
// labels are counted in none of them.
func CountBuckets(passages []Passage) BucketCounts {
	var counts BucketCounts
	for _, p := range passages {
		switch p.Relevance {
		case RelevanceRelated:
			counts.Related++
		case RelevanceSomewhat:
			counts.Somewhat++
		case RelevanceOffTopic:
			counts.OffTopic++
		}
	}
	return counts
}

// Filtered returns the passages to display, optionally hiding Off-topic hits.
func Filtered(passages []Passage, includeOffTopic bool) []Passage {
	if includeOffTopic {
		return passages
	}
	result := make([]Passage, 0, len(passages))
	for _, p := range passages {
		if p.Relevance == RelevanceOffTopic {
			continue
		}
		result = append(result, p)
	}
	return result
}

// DistanceWidth converts a dissimilarity score into a closeness bar width.
// The distance is clamped to [0,1]; a missing distance renders as 0%.
func DistanceWidth(distance *float64) string {
	if distance == nil {
		return "0%"
	}
	d := *distance
	if d < 0 {
		d = 0
	}
	if d > 1 {
		d = 1
	}
	return fmt.Sprintf("%d%%", int(math.Round((1-d)*100)))
}

// HighlightTerms wraps every case-insensitive occurrence of the question's
// significant tokens (length > 2, deduplicated case-insensitively) in <mark>
// tags. Tokens are applied sequentially, so a token that is a substring of an
// already-wrapped span may wrap again; that cosmetic over-wrap is intentional.
func HighlightTerms(question, text string) string {
	seen := make(map[string]struct{})
	for _, token := range strings.Fields(question) {
		if utf8.RuneCountInString(token) <= 2 {
			continue
		}
		lower := strings.ToLower(token)
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}

		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(token))
		if err != nil {
			continue
		}
		text = re.ReplaceAllString(text, "<mark>$0</mark>")
	}
	return text
}

// StripSources truncates an answer at the first case-insensitive occurrence
// of "sources:", trimming trailing whitespace. Answers without the marker are
// returned trimmed, content unchanged.
func StripSources(answer string) string {
	if idx := foldIndex(answer, "sources:"); idx >= 0 {
		return strings.TrimSpace(answer[:idx])
	}
	return strings.TrimSpace(answer)
}

// foldIndex locates the first case-insensitive occurrence of marker and
// returns its byte offset in the original string. Lowering the whole string
// first would shift offsets for runes whose lowercase form differs in byte
// length.
func foldIndex(s, marker string) int {
	for i := range s {
		if i+len(marker) > len(s) {
			break
		}
		if strings.EqualFold(s[i:i+len(marker)], marker) {
			return i
		}
	}
	return -1
}
