package prediction

import "errors"

var (
	// ErrInsufficientFeatures is returned when a feature the scorer requires is absent
	ErrInsufficientFeatures = errors.New("insufficient features for scoring")

	// ErrBelowConfidenceThreshold is returned when the evaluation is neutral or below the
	// configured confidence floor. No prediction is emitted.
	ErrBelowConfidenceThreshold = errors.New("confidence below threshold")

	// ErrNotEnoughSamples is returned by the trainer when the dataset is too small
	ErrNotEnoughSamples = errors.New("not enough training samples")

	// ErrModelUnavailable is returned when no learned model can be loaded
	ErrModelUnavailable = errors.New("learned model unavailable")

	// ErrRetrainInProgress is returned when a training run is already active
	ErrRetrainInProgress = errors.New("retraining already in progress")

	// ErrInvalidArtifact is returned when a model artifact cannot be decoded
	ErrInvalidArtifact = errors.New("invalid model artifact")
)

// IsBenign reports whether err means "no prediction" rather than a failure
func IsBenign(err error) bool {
	return errors.Is(err, ErrInsufficientFeatures) || errors.Is(err, ErrBelowConfidenceThreshold)
}
