// Package cascade implements stub.Detector with an OpenCV Haar cascade.
package cascade

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Params tunes detectMultiScale.
type Params struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      image.Point
}

// DefaultParams matches the car cascade tuning.
func DefaultParams() Params {
	return Params{ScaleFactor: 1.1, MinNeighbors: 3, MinSize: image.Pt(60, 60)}
}

// Detector runs a Haar cascade over grayscale frames.
type Detector struct {
	params Params

	// CascadeClassifier is not safe for concurrent use.
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
}

// Load reads a cascade XML file.
func Load(path string, params Params) (*Detector, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("cascade: failed to load %s", path)
	}
	return &Detector{params: params, classifier: classifier}, nil
}

// Detect decodes data and reports whether any region matched.
func (d *Detector) Detect(data []byte) (bool, error) {
	boxes, err := d.Boxes(data)
	if err != nil {
		return false, err
	}
	return len(boxes) > 0, nil
}

// Boxes returns every matched region.
func (d *Detector) Boxes(data []byte) ([]image.Rectangle, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("cascade: decode: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("cascade: empty frame")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.DetectMultiScaleWithParams(gray, d.params.ScaleFactor, d.params.MinNeighbors, 0, d.params.MinSize, image.Point{}), nil
}

// Close releases the classifier.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.Close()
}
