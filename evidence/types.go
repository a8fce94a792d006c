package evidence

// Relevance labels as emitted by the backend. The backend owns the
// classification; anything outside this set is normalized to
// RelevanceUnknown at the decode boundary and gets no bucket of its own.
const (
	RelevanceRelated  = "Related"
	RelevanceSomewhat = "Somewhat related"
	RelevanceOffTopic = "Off-topic"
	RelevanceUnknown  = "Unknown"
)

// Passage is a single retrieval hit attached to an answer. Distance is the
// backend's dissimilarity score (lower = more similar) and may be absent.
type Passage struct {
	Source    string   `json:"source"`
	Chunk     int      `json:"chunk"`
	Distance  *float64 `json:"distance"`
	Text      string   `json:"text"`
	Relevance string   `json:"relevance"`
}

// Key identifies a passage within one answer's retrieval set.
type Key struct {
	Source string `json:"source"`
	Chunk  int    `json:"chunk"`
}

func (p Passage) Key() Key {
	return Key{Source: p.Source, Chunk: p.Chunk}
}

// BucketCounts summarizes how many passages fall into each relevance bucket.
type BucketCounts struct {
	Related  int `json:"related"`
	Somewhat int `json:"somewhat"`
	OffTopic int `json:"offTopic"`
}
