package stub

import (
	"bufio"
	"image"
	"math"
	"os"
	"strings"
)

// DefaultClasses is the label set used when no class list is given.
var DefaultClasses = []string{
	"Front Normal",
	"Front Breakage",
	"Front Crushed",
	"Rear Normal",
	"Rear Breakage",
	"Rear Crushed",
}

// Prediction is a classifier output.
type Prediction struct {
	Label      string
	Confidence float64
	Probs      []float64
}

// Classifier labels a decoded frame.
type Classifier interface {
	Classify(img image.Image) (Prediction, error)
}

// Detector reports whether the frame contains the subject at all.
// Frames without it are answered with NoSubjectLabel and never saved.
type Detector interface {
	Detect(data []byte) (bool, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(img image.Image) (Prediction, error)

// Classify calls f(img).
func (f ClassifierFunc) Classify(img image.Image) (Prediction, error) {
	return f(img)
}

// LuminanceClassifier is a deterministic stand-in model: the frame's mean
// luminance picks a bucket over Classes, and the distance to every bucket
// centre gives the probability vector.
type LuminanceClassifier struct {
	Classes []string

	// Sharpness scales how peaked the distribution is.
	Sharpness float64
}

// NewLuminanceClassifier creates a classifier over classes, or
// DefaultClasses when classes is empty.
func NewLuminanceClassifier(classes []string) *LuminanceClassifier {
	if len(classes) == 0 {
		classes = DefaultClasses
	}
	return &LuminanceClassifier{Classes: classes, Sharpness: 12}
}

// Classify implements Classifier.
func (c *LuminanceClassifier) Classify(img image.Image) (Prediction, error) {
	lum := MeanLuminance(img)
	n := len(c.Classes)

	probs := make([]float64, n)
	var sum float64
	for i := range probs {
		centre := (float64(i) + 0.5) / float64(n)
		probs[i] = math.Exp(-c.Sharpness * float64(n) * math.Abs(lum-centre))
		sum += probs[i]
	}

	best := 0
	for i := range probs {
		probs[i] /= sum
		if probs[i] > probs[best] {
			best = i
		}
	}
	return Prediction{Label: c.Classes[best], Confidence: probs[best], Probs: probs}, nil
}

// MeanLuminance returns the average Rec. 601 luma in [0,1], sampling at
// most a 64x64 grid.
func MeanLuminance(img image.Image) float64 {
	b := img.Bounds()
	if b.Empty() {
		return 0
	}
	stepX := max(1, b.Dx()/64)
	stepY := max(1, b.Dy()/64)

	var total float64
	var count int
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			r, g, bl, _ := img.At(x, y).RGBA()
			total += (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 0xffff
			count++
		}
	}
	return total / float64(count)
}

// LoadClasses reads one label per line. A missing or empty file yields
// DefaultClasses.
func LoadClasses(path string) ([]string, error) {
	if path == "" {
		return DefaultClasses, nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return DefaultClasses, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var classes []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			classes = append(classes, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(classes) == 0 {
		return DefaultClasses, nil
	}
	return classes, nil
}
