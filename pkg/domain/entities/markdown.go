package entities

// MarkdownResult is a price markdown recommendation.
// MarkdownPct is in whole percentage points, a multiple of the rounding step.
type MarkdownResult struct {
	SellThroughRate float64 `json:"sell_through_rate"`
	TargetRate      float64 `json:"target_rate"`
	Elasticity      float64 `json:"elasticity"`
	Gap             float64 `json:"gap"`
	RawPct          float64 `json:"raw_pct"`
	MarkdownPct     int     `json:"markdown_pct"`
	Capped          bool    `json:"capped"`
	Recommended     bool    `json:"recommended"`
	Week            int     `json:"week,omitempty"`
}
