package ocrsweep

import (
	"context"
	"fmt"
	"image"
	"io/ioutil"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const defaultTesseractBinary = "tesseract"

// This variant of the TesseractEngine calls tesseract via exec
type TesseractEngine struct {
	// Binary is the tesseract executable, looked up in PATH if not absolute
	Binary    string
	TempDir   string
	SaveFiles bool
	// Timeout bounds a single tesseract call, zero means no limit
	Timeout time.Duration
}

type TesseractEngineArgs struct {
	configVars  map[string]string
	pageSegMode string
	engineMode  string
	lang        string
}

func NewTesseractEngineArgs(engineArgs EngineArgs) *TesseractEngineArgs {
	tesseractArgs := &TesseractEngineArgs{
		configVars:  engineArgs.ConfigVars,
		pageSegMode: strconv.Itoa(engineArgs.PageSegMode),
		engineMode:  strconv.Itoa(engineArgs.EngineMode),
		lang:        engineArgs.Lang,
	}
	return tesseractArgs
}

// return a slice that can be passed to tesseract binary as command line
// args, eg, ["--oem", "3", "--psm", "6", "-c", "preserve_interword_spaces=1", "-l", "hye+arm"]
// config vars are sorted by name so equal args always give the same command line.
func (t TesseractEngineArgs) Export() []string {
	var result []string
	if t.engineMode != "" {
		result = append(result, "--oem", t.engineMode)
	}
	if t.pageSegMode != "" {
		result = append(result, "--psm", t.pageSegMode)
	}
	keys := make([]string, 0, len(t.configVars))
	for k := range t.configVars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		result = append(result, "-c", fmt.Sprintf("%s=%s", k, t.configVars[k]))
	}
	if t.lang != "" {
		result = append(result, "-l", t.lang)
	}

	return result
}

func (t TesseractEngine) binary() string {
	if t.Binary == "" {
		return defaultTesseractBinary
	}
	return t.Binary
}

// Recognize writes img to a temporary PNG file and runs tesseract over it
func (t TesseractEngine) Recognize(ctx context.Context, img image.Image, engineArgs EngineArgs) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tmpFileName, err := createTempFileName(t.TempDir, "")
	if err != nil {
		return "", err
	}
	inputFileName := tmpFileName + ".png"

	if err := saveImageToFileName(img, inputFileName); err != nil {
		log.Error().Err(err).Str("component", "OCR_TESSERACT").Msg("error writing page image")
		return "", err
	}
	if !t.SaveFiles {
		defer removeFile(inputFileName, "OCR_TESSERACT")
	}

	return t.processImageFile(ctx, inputFileName, *NewTesseractEngineArgs(engineArgs))
}

func (t TesseractEngine) processImageFile(ctx context.Context, inputFilename string, engineArgs TesseractEngineArgs) (string, error) {

	// if the input filename is /tmp/ocrimage.png, set the output file basename
	// to /tmp/ocrimage, which will produce /tmp/ocrimage.txt output
	tmpOutFileBaseName := strings.TrimSuffix(inputFilename, ".png")

	fileExtensions := []string{"txt"}

	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	// build args array
	cflags := engineArgs.Export()
	cmdArgs := []string{inputFilename, tmpOutFileBaseName}
	cmdArgs = append(cmdArgs, cflags...)
	log.Debug().Str("component", "OCR_TESSERACT").Strs("cmdArgs", cmdArgs).Msg("exec tesseract")

	// exec tesseract
	cmd := exec.CommandContext(ctx, t.binary(), cmdArgs...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", errors.Errorf("tesseract timed out after %v", t.Timeout)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Debug().Err(err).Str("component", "OCR_TESSERACT").Msg(string(output))
		return "", errors.Errorf("tesseract failed (%v): %s", err, strings.TrimSpace(string(output)))
	}

	outBytes, outFile, err := findAndReadOutfile(tmpOutFileBaseName, fileExtensions)
	if err != nil {
		log.Error().Err(err).Str("component", "OCR_TESSERACT").
			Str("file_name", tmpOutFileBaseName).Msg("Error getting data from out file")
		return "", err
	}

	// delete output file when we are done
	if !t.SaveFiles {
		removeFile(outFile, "OCR_TESSERACT")
	}

	return string(outBytes), nil

}

// ListLanguages returns the language packs the tesseract installation knows about
func (t TesseractEngine) ListLanguages(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, t.binary(), "--list-langs").CombinedOutput()
	if err != nil {
		return nil, errors.Errorf("tesseract --list-langs failed (%v): %s", err, strings.TrimSpace(string(out)))
	}
	return parseLanguageList(string(out)), nil
}

// parseLanguageList reads the output of tesseract --list-langs, which starts
// with a 'List of available languages in "..." (N):' header line.
func parseLanguageList(output string) []string {
	var langs []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of available languages") {
			continue
		}
		langs = append(langs, line)
	}
	return langs
}

// missingLanguages lists the packs of a "+" joined language string that are
// not in available
func missingLanguages(lang string, available []string) []string {
	installed := make(map[string]bool, len(available))
	for _, l := range available {
		installed[l] = true
	}
	var missing []string
	for _, l := range strings.Split(lang, "+") {
		if l != "" && !installed[l] {
			missing = append(missing, l)
		}
	}
	return missing
}

func findOutfile(outfileBaseName string, fileExtensions []string) (string, error) {

	for _, fileExtension := range fileExtensions {

		outFile := fmt.Sprintf("%v.%v", outfileBaseName, fileExtension)
		log.Debug().Str("component", "OCR_TESSERACT").Str("outFile", outFile).
			Msg("check if file exists")

		if _, err := os.Stat(outFile); err == nil {
			return outFile, nil
		}

	}

	return "", errors.Errorf("could not find outfile. Basename: %v Extensions: %v", outfileBaseName, fileExtensions)

}

func findAndReadOutfile(outfileBaseName string, fileExtensions []string) (outBytes []byte, outfile string, err error) {

	outfile, err = findOutfile(outfileBaseName, fileExtensions)
	if err != nil {
		return nil, "", err
	}
	outBytes, err = ioutil.ReadFile(outfile)
	if err != nil {
		return nil, "", err
	}
	return outBytes, outfile, nil

}
