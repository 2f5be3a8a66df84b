//go:build gosseract

package ocrsweep

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// GoTesseractEngine runs libtesseract in process through gosseract. The
// engine mode is left to the library, gosseract does not expose it.
type GoTesseractEngine struct {
	clientFactory func() *gosseract.Client
}

func NewGoTesseractEngine() (OcrEngine, error) {
	return &GoTesseractEngine{clientFactory: gosseract.NewClient}, nil
}

func (e *GoTesseractEngine) Recognize(ctx context.Context, img image.Image, engineArgs EngineArgs) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", errors.Wrap(err, "encode page image")
	}

	client := e.clientFactory()
	defer client.Close()

	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", errors.Wrap(err, "set image")
	}
	if engineArgs.Lang != "" {
		if err := client.SetLanguage(strings.Split(engineArgs.Lang, "+")...); err != nil {
			return "", errors.Wrap(err, "set languages")
		}
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(engineArgs.PageSegMode)); err != nil {
		return "", errors.Wrap(err, "set page segmentation mode")
	}
	for k, v := range engineArgs.ConfigVars {
		if err := client.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return "", errors.Wrapf(err, "set variable %s", k)
		}
	}

	log.Debug().Str("component", "OCR_GOSSERACT").Str("lang", engineArgs.Lang).
		Int("psm", engineArgs.PageSegMode).Msg("recognize page")
	text, err := client.Text()
	if err != nil {
		return "", errors.Wrap(err, "recognize text")
	}
	return text, nil
}
