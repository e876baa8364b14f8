package prediction

// Decision is the raw output of a scorer before levels and sizing are attached
type Decision struct {
	Direction  string   // LONG, SHORT, NEUTRAL, STRONG_LONG or STRONG_SHORT
	Confidence float64  // 0-100
	Reasons    []string // condition tags that contributed
}

// Scorer turns a feature view into a direction and a confidence
type Scorer interface {
	Name() string
	Version() string
	Type() string
	Score(f Features) (Decision, error)
}
