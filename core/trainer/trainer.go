package trainer

import (
	"context"
	"path/filepath"

	"train-orchestrator/core/models"
)

// Default inference thresholds applied when the caller passes zero values
const (
	DefaultConfThreshold = 0.25
	DefaultIOUThreshold  = 0.45
)

// TrainRequest describes one training invocation of the backend
type TrainRequest struct {
	BaseModelRef string
	DatasetRef   string
	EpochCount   int
	Device       string
}

// EpochMetrics holds the metrics the backend reports for a single epoch
type EpochMetrics struct {
	Loss float64
	MAP  float64
}

// Values returns the metric mapping persisted per epoch
func (m EpochMetrics) Values() map[string]float64 {
	return map[string]float64{"loss": m.Loss, "mAP": m.MAP}
}

// TrainResult is the output of a successful training invocation
type TrainResult struct {
	Epochs      []EpochMetrics
	ArtifactDir string   // Directory the backend wrote its outputs into
	Labels      []string // Class labels the trained model predicts, may be empty
}

// BestWeightsPath resolves the final weights file inside ArtifactDir
func (r *TrainResult) BestWeightsPath() string {
	return filepath.Join(r.ArtifactDir, "weights", "best.pt")
}

// MetricsForEpoch returns the metrics for a 1-based epoch. Epochs the
// backend did not report are filled with zero values so a run always yields
// exactly EpochCount metric records.
func (r *TrainResult) MetricsForEpoch(epoch int) EpochMetrics {
	if epoch >= 1 && epoch <= len(r.Epochs) {
		return r.Epochs[epoch-1]
	}
	return EpochMetrics{}
}

// PredictOptions tunes an inference invocation
type PredictOptions struct {
	ConfThreshold float64
	IOUThreshold  float64
}

// Trainer runs a full training cycle on an external backend
type Trainer interface {
	Train(ctx context.Context, req TrainRequest) (*TrainResult, error)
}

// Predictor runs inference against a stored model on an external backend
type Predictor interface {
	Predict(ctx context.Context, modelPath string, images []string, opts PredictOptions) ([]models.ImageResult, error)
}
