package ocrsweep

import (
	"context"
	"encoding/json"
	"image"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type OcrEngineType int

// tesseract "default" engine mode, legacy plus LSTM where available. Every
// method is recognized with it.
const defaultEngineMode = 3

const (
	EngineTesseract = OcrEngineType(iota)
	EngineGoTesseract
	EngineMock
)

// EngineArgs are the per call settings of an OCR engine
type EngineArgs struct {
	// Lang is a tesseract language string, several packs joined by "+"
	Lang        string
	PageSegMode int
	EngineMode  int
	ConfigVars  map[string]string
}

type OcrEngine interface {
	Recognize(ctx context.Context, img image.Image, args EngineArgs) (string, error)
}

func NewOcrEngine(engineType OcrEngineType, sweepConfig SweepConfig) (OcrEngine, error) {
	switch engineType {
	case EngineMock:
		return &MockEngine{}, nil
	case EngineTesseract:
		return &TesseractEngine{
			Binary:    sweepConfig.TesseractPath,
			TempDir:   sweepConfig.WorkDir,
			SaveFiles: sweepConfig.SaveFiles,
			Timeout:   sweepConfig.OcrTimeout,
		}, nil
	case EngineGoTesseract:
		return NewGoTesseractEngine()
	}
	return nil, errors.Errorf("unknown ocr engine type %d", int(engineType))
}

func (e OcrEngineType) String() string {
	switch e {
	case EngineMock:
		return "ENGINE_MOCK"
	case EngineTesseract:
		return "ENGINE_TESSERACT"
	case EngineGoTesseract:
		return "ENGINE_GO_TESSERACT"
	}
	return ""
}

// ParseOcrEngineType accepts "tesseract" as well as "ENGINE_TESSERACT"
func ParseOcrEngineType(name string) (OcrEngineType, error) {
	engineString := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "ENGINE_")
	switch engineString {
	case "TESSERACT":
		return EngineTesseract, nil
	case "GO_TESSERACT", "GOSSERACT":
		return EngineGoTesseract, nil
	case "MOCK":
		return EngineMock, nil
	}
	return 0, errors.Errorf("unknown ocr engine %q", name)
}

// Set and Type make OcrEngineType usable as a command line flag value
func (e *OcrEngineType) Set(value string) error {
	parsed, err := ParseOcrEngineType(value)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

func (e *OcrEngineType) Type() string {
	return "engine"
}

func (e *OcrEngineType) UnmarshalJSON(b []byte) (err error) {

	var engineTypeStr string

	if err := json.Unmarshal(b, &engineTypeStr); err == nil {
		parsed, err := ParseOcrEngineType(engineTypeStr)
		if err != nil {
			log.Warn().Str("component", "OCR_ENGINE").Str("engineString", engineTypeStr).
				Msg("Unexpected OcrEngineType json")
			return err
		}
		*e = parsed
		return nil
	}

	// not a string .. maybe it's an int

	var engineTypeInt int
	if err := json.Unmarshal(b, &engineTypeInt); err != nil {
		return err
	}
	*e = OcrEngineType(engineTypeInt)
	return nil

}
