// Package upload sends encoded frames to a classification endpoint.
//
// The endpoint accepts a multipart POST with one file field and answers
// with JSON:
//
//	{"label": "dent", "confidence": 0.87, "saved_filename": "20240101_120000_dent_87.jpg"}
//
// Example usage:
//
//	client, _ := upload.NewClient(upload.WithURL("http://localhost:8000/predict-file"))
//	defer client.Close()
//
//	resp, err := client.Upload(ctx, frame.Data)
package upload

import "context"

// Uploader sends one encoded image and returns the classification.
type Uploader interface {
	Upload(ctx context.Context, image []byte) (*Response, error)
}

// Response is a parsed classification result.
type Response struct {
	// Label is the predicted class, or the fallback label when absent.
	Label string

	// Confidence is the prediction score in [0, 1].
	Confidence float64

	// SavedFilename is the server-side snapshot name, if the server kept one.
	SavedFilename string

	// Saved is true when the server reported a saved snapshot.
	Saved bool

	// Probs holds per-class probabilities when the server returns them.
	Probs []float64

	// LatencyMs is the round-trip time in milliseconds.
	LatencyMs int64
}
