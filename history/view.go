package history

import (
	"math"
	"sort"
	"strings"

	"rag-console/evidence"
)

type Order string

const (
	OrderNewest Order = "newest"
	OrderOldest Order = "oldest"
)

// Query selects and orders runs for display.
type Query struct {
	Search string
	Status string // a Status value, or "" / "all" for everything
	Order  Order
}

// ClassifyStatus turns passage relevance counts into a run status. It is
// total over any non-negative triple; ties favor good.
func ClassifyStatus(related, somewhat, off int) Status {
	switch {
	case related+somewhat+off == 0:
		return StatusNoEvidence
	case related >= somewhat+off:
		return StatusGood
	case off > related+somewhat:
		return StatusOffTopic
	default:
		return StatusMixed
	}
}

// StatusOf classifies one run from its passage list.
func StatusOf(run Run) Status {
	counts := evidence.CountBuckets(run.Passages)
	return ClassifyStatus(counts.Related, counts.Somewhat, counts.OffTopic)
}

// View applies the display pipeline: substring filter on the question,
// status filter, then a stable sort by load ordinal. The stages run in that
// order so the output is deterministic.
func View(runs []Run, q Query) []Run {
	result := make([]Run, 0, len(runs))

	search := strings.ToLower(strings.TrimSpace(q.Search))
	for _, run := range runs {
		if search != "" && !strings.Contains(strings.ToLower(run.Question), search) {
			continue
		}
		result = append(result, run)
	}

	if q.Status != "" && q.Status != "all" {
		filtered := result[:0]
		for _, run := range result {
			if string(StatusOf(run)) == q.Status {
				filtered = append(filtered, run)
			}
		}
		result = filtered
	}

	sort.SliceStable(result, func(i, j int) bool {
		if q.Order == OrderOldest {
			return result[i].Ordinal < result[j].Ordinal
		}
		return result[i].Ordinal > result[j].Ordinal
	})

	return result
}

// Summarize derives the headline statistics for a run set. Runs without a
// trust score count as zero toward the average.
func Summarize(runs []Run) Stats {
	stats := Stats{Runs: len(runs)}
	if len(runs) == 0 {
		return stats
	}

	total := 0
	for _, run := range runs {
		stats.Passages += len(run.Passages)
		if run.TrustScore != nil {
			total += *run.TrustScore
		}
		switch StatusOf(run) {
		case StatusGood:
			stats.Good++
		case StatusOffTopic:
			stats.OffTopic++
		}
	}
	stats.AvgTrust = int(math.Round(float64(total) / float64(len(runs))))
	return stats
}
