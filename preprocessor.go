package ocrsweep

import (
	"encoding/json"
	"image"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type PreprocessorType int

const (
	PreprocessorAggressive = PreprocessorType(iota)
	PreprocessorGentle
	PreprocessorPassThrough
	PreprocessorInverted
)

const (
	aggressiveContrast  = 3.0
	aggressiveSharpness = 2.5
	binarizeThreshold   = 128
	gentleContrast      = 1.5
	medianWindow        = 3
	invertedContrast    = 2.0
)

// Preprocessor turns a page image into the image handed to the OCR engine.
// The result always shows the same logical page.
type Preprocessor interface {
	Preprocess(img image.Image) (image.Image, error)
}

func NewPreprocessor(preprocessorType PreprocessorType) (Preprocessor, error) {
	switch preprocessorType {
	case PreprocessorAggressive:
		return AggressivePreprocessor{}, nil
	case PreprocessorGentle:
		return GentlePreprocessor{}, nil
	case PreprocessorPassThrough:
		return PassThroughPreprocessor{}, nil
	case PreprocessorInverted:
		return InvertedPreprocessor{}, nil
	}
	return nil, errors.Errorf("unknown preprocessor type %d", int(preprocessorType))
}

// AggressivePreprocessor boosts contrast and sharpness hard and binarizes the
// page into pure black and white.
type AggressivePreprocessor struct{}

func (AggressivePreprocessor) Preprocess(img image.Image) (image.Image, error) {
	gray, err := grayscale(img)
	if err != nil {
		return nil, err
	}
	gray = enhanceContrast(gray, aggressiveContrast)
	gray = enhanceSharpness(gray, aggressiveSharpness)
	return binarize(gray, binarizeThreshold), nil
}

// GentlePreprocessor keeps the gray levels, with moderate contrast and a
// median filter against speckle noise.
type GentlePreprocessor struct{}

func (GentlePreprocessor) Preprocess(img image.Image) (image.Image, error) {
	gray, err := grayscale(img)
	if err != nil {
		return nil, err
	}
	gray = enhanceContrast(gray, gentleContrast)
	return medianFilter(toGray(gray), medianWindow), nil
}

type PassThroughPreprocessor struct{}

func (PassThroughPreprocessor) Preprocess(img image.Image) (image.Image, error) {
	gray, err := grayscale(img)
	if err != nil {
		return nil, err
	}
	return toGray(gray), nil
}

// InvertedPreprocessor is meant for light text on dark backgrounds
type InvertedPreprocessor struct{}

func (InvertedPreprocessor) Preprocess(img image.Image) (image.Image, error) {
	gray, err := grayscale(img)
	if err != nil {
		return nil, err
	}
	gray = enhanceContrast(invert(gray), invertedContrast)
	return toGray(gray), nil
}

func (p PreprocessorType) String() string {
	switch p {
	case PreprocessorAggressive:
		return "aggressive"
	case PreprocessorGentle:
		return "gentle"
	case PreprocessorPassThrough:
		return "pass-through"
	case PreprocessorInverted:
		return "inverted"
	}
	return ""
}

// ParsePreprocessorType accepts the names returned by String, case insensitive.
// "original", "grayscale" and "identity" are aliases of pass-through.
func ParsePreprocessorType(name string) (PreprocessorType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "aggressive":
		return PreprocessorAggressive, nil
	case "gentle":
		return PreprocessorGentle, nil
	case "pass-through", "passthrough", "original", "grayscale", "identity":
		return PreprocessorPassThrough, nil
	case "inverted":
		return PreprocessorInverted, nil
	}
	return 0, errors.Errorf("unknown preprocessor %q", name)
}

func (p PreprocessorType) MarshalJSON() ([]byte, error) {
	if p.String() == "" {
		return nil, errors.Errorf("unknown preprocessor type %d", int(p))
	}
	return json.Marshal(p.String())
}

func (p *PreprocessorType) UnmarshalJSON(b []byte) error {

	var preprocessorStr string
	if err := json.Unmarshal(b, &preprocessorStr); err == nil {
		parsed, err := ParsePreprocessorType(preprocessorStr)
		if err != nil {
			return err
		}
		*p = parsed
		return nil
	}

	// not a string .. maybe it's an int
	var preprocessorInt int
	if err := json.Unmarshal(b, &preprocessorInt); err != nil {
		return err
	}
	if PreprocessorType(preprocessorInt).String() == "" {
		return errors.Errorf("unknown preprocessor type %d", preprocessorInt)
	}
	*p = PreprocessorType(preprocessorInt)
	return nil
}

func (p PreprocessorType) MarshalYAML() (interface{}, error) {
	if p.String() == "" {
		return nil, errors.Errorf("unknown preprocessor type %d", int(p))
	}
	return p.String(), nil
}

func (p *PreprocessorType) UnmarshalYAML(value *yaml.Node) error {
	if n, err := strconv.Atoi(value.Value); err == nil && PreprocessorType(n).String() != "" {
		*p = PreprocessorType(n)
		return nil
	}
	parsed, err := ParsePreprocessorType(value.Value)
	if err != nil {
		return errors.Wrapf(err, "line %d", value.Line)
	}
	*p = parsed
	return nil
}
