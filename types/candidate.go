package types

// ChannelName identifies one retrieval modality.
type ChannelName string

const (
	ChannelDense   ChannelName = "dense"
	ChannelSparse  ChannelName = "sparse"
	ChannelSummary ChannelName = "summary"
)

// RetrievalCandidate is one ranked hit produced by a single channel.
// Rank starts at 1 (best). Ref is a chunk ID for the dense and sparse
// channels, and may be a tree node ID for the summary channel.
type RetrievalCandidate struct {
	Ref      string      `json:"ref"`
	Channel  ChannelName `json:"channel"`
	Rank     int         `json:"rank"`
	RawScore float64     `json:"raw_score"`
	Text     string      `json:"text,omitempty"`
}

// FusedResult is one deduplicated entry after rank fusion. Exactly one
// FusedResult exists per unique Ref; ContributingChannels is sorted for
// deterministic output.
type FusedResult struct {
	Ref                  string        `json:"ref"`
	FusedScore           float64       `json:"fused_score"`
	ContributingChannels []ChannelName `json:"contributing_channels"`
	BestRank             int           `json:"best_rank"`
	Text                 string        `json:"text,omitempty"`
}

// RerankedResult is the final output unit after cross-encoder reranking.
type RerankedResult struct {
	Ref         string  `json:"ref"`
	RerankScore float64 `json:"rerank_score"`
	Text        string  `json:"text"`
}
