package models

import "time"

// ModelMeta describes a stored model artifact
type ModelMeta struct {
	ModelName string    `json:"model_name"`
	Path      string    `json:"path"` // Absolute location of the weights file
	Labels    []string  `json:"labels,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Prediction represents one detection returned by inference
type Prediction struct {
	BBox  [4]float64 `json:"bbox"` // x1, y1, x2, y2
	Score float64    `json:"score"`
	Label int        `json:"label"`
}

// ImageResult holds the predictions for a single input image
type ImageResult struct {
	Image       string       `json:"image"`
	Predictions []Prediction `json:"predictions"`
}
