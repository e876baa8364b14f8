package prediction

import (
	"fmt"
	"math"
	"time"

	models "crypto-signal-engine/database/models_pkg"
	"crypto-signal-engine/database/types"
)

// TrainerConfig holds training hyperparameters
type TrainerConfig struct {
	MinSamples     int     // minimum usable samples
	LabelThreshold float64 // realized move in percent separating LONG/SHORT from NEUTRAL
	ValidationPct  float64 // chronological tail held out for validation
	Epochs         int
	LearningRate   float64
	L2             float64
}

// DefaultTrainerConfig returns the production hyperparameters
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		MinSamples:     200,
		LabelThreshold: 0.5,
		ValidationPct:  0.2,
		Epochs:         300,
		LearningRate:   0.1,
		L2:             0.001,
	}
}

// TrainingReport summarizes a training run. Metrics are percentages on the validation split.
type TrainingReport struct {
	Samples   int
	Train     int
	Validate  int
	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64
	Duration  time.Duration
}

// Trainer fits LearnedModel instances from resolved predictions
type Trainer struct {
	cfg TrainerConfig
}

// NewTrainer creates a trainer
func NewTrainer(cfg TrainerConfig) *Trainer {
	return &Trainer{cfg: cfg}
}

type sample struct {
	x     []float64
	label int
}

// Label classifies a realized move: beyond +threshold is LONG, below -threshold is SHORT
func Label(entry, exit, threshold float64) string {
	if entry == 0 {
		return models.DirectionNeutral
	}
	move := (exit - entry) / entry * 100
	switch {
	case move > threshold:
		return models.DirectionLong
	case move < -threshold:
		return models.DirectionShort
	default:
		return models.DirectionNeutral
	}
}

func classIndex(direction string) int {
	for i, c := range Classes {
		if c == direction {
			return i
		}
	}
	return 1
}

// Train fits a model on rows ordered by result time. The newest ValidationPct of the
// rows is held out so the report reflects forward performance.
func (t *Trainer) Train(rows []types.ResolvedSample, version string) (*LearnedModel, *TrainingReport, error) {
	start := time.Now()

	samples := make([]sample, 0, len(rows))
	for _, r := range rows {
		f, err := ParseFeatures(r.FeaturesUsed)
		if err != nil || len(f.Missing()) > 0 {
			continue
		}
		label := Label(r.EntryPrice, r.ExitPrice, t.cfg.LabelThreshold)
		samples = append(samples, sample{x: Vector(f), label: classIndex(label)})
	}

	if len(samples) < t.cfg.MinSamples {
		return nil, nil, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughSamples, len(samples), t.cfg.MinSamples)
	}

	split := int(float64(len(samples)) * (1 - t.cfg.ValidationPct))
	if split < 1 {
		split = 1
	}
	train, valid := samples[:split], samples[split:]

	m := &LearnedModel{
		Version:   version,
		TrainedAt: time.Now().UTC(),
	}
	m.Means, m.Stds = scaler(train)

	nFeat := len(FeatureNames)
	m.Weights = make([][]float64, len(Classes))
	for c := range m.Weights {
		m.Weights[c] = make([]float64, nFeat)
	}
	m.Biases = make([]float64, len(Classes))

	zs := make([][]float64, len(train))
	for i, s := range train {
		zs[i] = m.standardize(s.x)
	}

	n := float64(len(train))
	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		gradW := make([][]float64, len(Classes))
		for c := range gradW {
			gradW[c] = make([]float64, nFeat)
		}
		gradB := make([]float64, len(Classes))

		for i, z := range zs {
			probs := softmax(m.logits(z))
			for c := range Classes {
				diff := probs[c]
				if c == train[i].label {
					diff -= 1
				}
				gradB[c] += diff
				for j, v := range z {
					gradW[c][j] += diff * v
				}
			}
		}

		for c := range Classes {
			m.Biases[c] -= t.cfg.LearningRate * gradB[c] / n
			for j := range m.Weights[c] {
				m.Weights[c][j] -= t.cfg.LearningRate * (gradW[c][j]/n + t.cfg.L2*m.Weights[c][j])
			}
		}
	}

	report := evaluate(m, valid)
	report.Samples = len(samples)
	report.Train = len(train)
	report.Validate = len(valid)
	report.Duration = time.Since(start)
	return m, report, nil
}

// scaler computes per-feature mean and std over present values
func scaler(train []sample) (means, stds []float64) {
	nFeat := len(FeatureNames)
	means = make([]float64, nFeat)
	stds = make([]float64, nFeat)

	for j := 0; j < nFeat; j++ {
		sum, count := 0.0, 0
		for _, s := range train {
			if v := s.x[j]; !math.IsNaN(v) && !math.IsInf(v, 0) {
				sum += v
				count++
			}
		}
		if count == 0 {
			continue
		}
		mean := sum / float64(count)

		sq := 0.0
		for _, s := range train {
			if v := s.x[j]; !math.IsNaN(v) && !math.IsInf(v, 0) {
				sq += (v - mean) * (v - mean)
			}
		}
		means[j] = mean
		stds[j] = math.Sqrt(sq / float64(count))
	}
	return means, stds
}

// evaluate computes accuracy and macro precision/recall/F1 in percent
func evaluate(m *LearnedModel, valid []sample) *TrainingReport {
	report := &TrainingReport{}
	if len(valid) == 0 {
		return report
	}

	k := len(Classes)
	tp := make([]float64, k)
	fp := make([]float64, k)
	fn := make([]float64, k)
	correct := 0

	for _, s := range valid {
		probs := m.Probabilities(s.x)
		pred := 0
		for i, p := range probs {
			if p > probs[pred] {
				pred = i
			}
		}
		if pred == s.label {
			correct++
			tp[pred]++
		} else {
			fp[pred]++
			fn[s.label]++
		}
	}

	var precision, recall, f1 float64
	for c := 0; c < k; c++ {
		p, r := 0.0, 0.0
		if tp[c]+fp[c] > 0 {
			p = tp[c] / (tp[c] + fp[c])
		}
		if tp[c]+fn[c] > 0 {
			r = tp[c] / (tp[c] + fn[c])
		}
		precision += p
		recall += r
		if p+r > 0 {
			f1 += 2 * p * r / (p + r)
		}
	}

	report.Accuracy = float64(correct) / float64(len(valid)) * 100
	report.Precision = precision / float64(k) * 100
	report.Recall = recall / float64(k) * 100
	report.F1 = f1 / float64(k) * 100
	return report
}
