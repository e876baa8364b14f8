package prediction

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	models "crypto-signal-engine/database/models_pkg"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Model classes, in weight-row order
var Classes = []string{models.DirectionShort, models.DirectionNeutral, models.DirectionLong}

// FeatureNames is the learned model's input vector, in column order
var FeatureNames = []string{
	"price_change_1",
	"price_change_5",
	"high_low_ratio",
	"close_open_ratio",
	"ema_20_50_cross",
	"ema_50_200_cross",
	"macd_signal_cross",
	"price_above_ema20",
	"volume_ratio",
	"bb_width",
	"atr_pct",
	"rsi_14",
	"rsi_7",
	"macd_histogram",
	"stoch_k",
	"stoch_d",
	"adx",
	"cci",
	"fear_greed_index",
	"btc_dominance",
	"market_regime_encoded",
}

// LearnedModel is a multinomial logistic regression over standardized features
type LearnedModel struct {
	Version   string
	TrainedAt time.Time
	Means     []float64
	Stds      []float64
	Weights   [][]float64 // one row per class
	Biases    []float64
}

// Vector maps a feature view onto FeatureNames. Absent values are NaN and are
// imputed with the training mean at prediction time.
func Vector(f Features) []float64 {
	nan := math.NaN()
	val := func(p *float64) float64 {
		if p == nil {
			return nan
		}
		return *p
	}
	ratio := func(a, b float64) float64 {
		if b == 0 {
			return nan
		}
		return a / b
	}
	cross := func(a, b *float64) float64 {
		if a == nil || b == nil {
			return nan
		}
		if *a > *b {
			return 1
		}
		return 0
	}

	fg := nan
	if f.FearGreedIndex != nil {
		fg = float64(*f.FearGreedIndex)
	}

	atrPct := nan
	if f.ATR != nil && f.Close != 0 {
		atrPct = *f.ATR / f.Close * 100
	}

	price := f.Close
	return []float64{
		val(f.PriceChange1),
		val(f.PriceChange5),
		ratio(f.High, f.Low),
		ratio(f.Close, f.Open),
		cross(f.EMA20, f.EMA50),
		cross(f.EMA50, f.EMA200),
		cross(f.MACD, f.MACDSignal),
		cross(&price, f.EMA20),
		val(f.VolumeRatio),
		val(f.BBWidth),
		atrPct,
		val(f.RSI14),
		val(f.RSI7),
		val(f.MACDHistogram),
		val(f.StochK),
		val(f.StochD),
		val(f.ADX),
		val(f.CCI),
		fg,
		val(f.BTCDominance),
		encodeRegime(f.MarketRegime),
	}
}

func encodeRegime(regime string) float64 {
	switch regime {
	case models.RegimeBull:
		return 1
	case models.RegimeBear:
		return -1
	case models.RegimeSideways, models.RegimeVolatile:
		return 0
	default:
		return math.NaN()
	}
}

// standardize imputes NaN with the mean and scales to unit variance
func (m *LearnedModel) standardize(x []float64) []float64 {
	z := make([]float64, len(x))
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			z[i] = 0
			continue
		}
		if m.Stds[i] == 0 {
			z[i] = 0
			continue
		}
		z[i] = (v - m.Means[i]) / m.Stds[i]
	}
	return z
}

// Probabilities returns the class distribution for a raw feature vector
func (m *LearnedModel) Probabilities(x []float64) []float64 {
	return softmax(m.logits(m.standardize(x)))
}

func (m *LearnedModel) logits(z []float64) []float64 {
	out := make([]float64, len(m.Biases))
	for c := range m.Biases {
		sum := m.Biases[c]
		for j, v := range z {
			sum += m.Weights[c][j] * v
		}
		out[c] = sum
	}
	return out
}

func softmax(logits []float64) []float64 {
	maxLogit := math.Inf(-1)
	for _, l := range logits {
		maxLogit = math.Max(maxLogit, l)
	}
	out := make([]float64, len(logits))
	sum := 0.0
	for i, l := range logits {
		out[i] = math.Exp(l - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// ArtifactPath returns where a model version is stored under dir
func ArtifactPath(dir, version string) string {
	return filepath.Join(dir, fmt.Sprintf("model_v%s.pb", version))
}

// Save writes the model as a protobuf Struct
func (m *LearnedModel) Save(path string) error {
	weights := make([]interface{}, len(m.Weights))
	for i, row := range m.Weights {
		weights[i] = floatsToList(row)
	}
	names := make([]interface{}, len(FeatureNames))
	for i, n := range FeatureNames {
		names[i] = n
	}
	classes := make([]interface{}, len(Classes))
	for i, c := range Classes {
		classes[i] = c
	}

	st, err := structpb.NewStruct(map[string]interface{}{
		"version":    m.Version,
		"trained_at": m.TrainedAt.UTC().Format(time.RFC3339),
		"features":   names,
		"classes":    classes,
		"means":      floatsToList(m.Means),
		"stds":       floatsToList(m.Stds),
		"weights":    weights,
		"biases":     floatsToList(m.Biases),
	})
	if err != nil {
		return fmt.Errorf("build model struct: %w", err)
	}

	data, err := proto.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadModel reads a model written by Save
func LoadModel(path string) (*LearnedModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	fields := st.GetFields()

	m := &LearnedModel{
		Version: fields["version"].GetStringValue(),
		Means:   listToFloats(fields["means"]),
		Stds:    listToFloats(fields["stds"]),
		Biases:  listToFloats(fields["biases"]),
	}
	if ts := fields["trained_at"].GetStringValue(); ts != "" {
		m.TrainedAt, _ = time.Parse(time.RFC3339, ts)
	}
	for _, row := range fields["weights"].GetListValue().GetValues() {
		m.Weights = append(m.Weights, listToFloats(row))
	}

	if err := m.validate(fields["features"]); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *LearnedModel) validate(features *structpb.Value) error {
	names := features.GetListValue().GetValues()
	if len(names) != len(FeatureNames) {
		return fmt.Errorf("%w: expected %d features, got %d", ErrInvalidArtifact, len(FeatureNames), len(names))
	}
	for i, n := range names {
		if n.GetStringValue() != FeatureNames[i] {
			return fmt.Errorf("%w: feature %d is %q, expected %q", ErrInvalidArtifact, i, n.GetStringValue(), FeatureNames[i])
		}
	}
	if m.Version == "" {
		return fmt.Errorf("%w: missing version", ErrInvalidArtifact)
	}
	if len(m.Means) != len(FeatureNames) || len(m.Stds) != len(FeatureNames) {
		return fmt.Errorf("%w: scaler size mismatch", ErrInvalidArtifact)
	}
	if len(m.Weights) != len(Classes) || len(m.Biases) != len(Classes) {
		return fmt.Errorf("%w: expected %d classes", ErrInvalidArtifact, len(Classes))
	}
	for _, row := range m.Weights {
		if len(row) != len(FeatureNames) {
			return fmt.Errorf("%w: weight row size mismatch", ErrInvalidArtifact)
		}
	}
	return nil
}

func floatsToList(v []float64) []interface{} {
	out := make([]interface{}, len(v))
	for i, f := range v {
		out[i] = f
	}
	return out
}

func listToFloats(v *structpb.Value) []float64 {
	values := v.GetListValue().GetValues()
	out := make([]float64, len(values))
	for i, x := range values {
		out[i] = x.GetNumberValue()
	}
	return out
}

// LearnedModelScorer adapts a LearnedModel to the Scorer interface
type LearnedModelScorer struct {
	model *LearnedModel
}

// NewLearnedModelScorer wraps a trained model
func NewLearnedModelScorer(m *LearnedModel) *LearnedModelScorer {
	return &LearnedModelScorer{model: m}
}

// Name identifies the scorer in logs
func (s *LearnedModelScorer) Name() string { return "model" }

// Version is the model_version stamped on predictions
func (s *LearnedModelScorer) Version() string { return s.model.Version }

// Type is the model_type stamped on predictions
func (s *LearnedModelScorer) Type() string { return models.ModelTypeLearned }

// Score runs the model on the feature view
func (s *LearnedModelScorer) Score(f Features) (Decision, error) {
	if missing := f.Missing(); len(missing) > 0 {
		return Decision{}, fmt.Errorf("%w: %v", ErrInsufficientFeatures, missing)
	}

	probs := s.model.Probabilities(Vector(f))
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}

	confidence := clamp(probs[best]*100, 0, 100)
	class := Classes[best]
	direction := class
	if class != models.DirectionNeutral {
		direction = directionFor(class == models.DirectionLong, confidence)
	}

	return Decision{
		Direction:  direction,
		Confidence: confidence,
		Reasons:    []string{fmt.Sprintf("model_p_%s=%.2f", class, probs[best])},
	}, nil
}
