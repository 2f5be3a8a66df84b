//go:build !gosseract

package ocrsweep

import "github.com/pkg/errors"

func NewGoTesseractEngine() (OcrEngine, error) {
	return nil, errors.New("built without libtesseract support, rebuild with -tags gosseract")
}
