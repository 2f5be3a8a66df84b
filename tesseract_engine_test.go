package ocrsweep

import (
	"context"
	"image"
	"image/color"
	"io/ioutil"
	"os/exec"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/couchbaselabs/go.assert"
	"github.com/rs/zerolog/log"
)

// writeFakeBinary puts an executable shell script into dir
func writeFakeBinary(t *testing.T, dir string, name string, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binaries are shell scripts")
	}
	fileName := filepath.Join(dir, name)
	err := ioutil.WriteFile(fileName, []byte("#!/bin/sh\n"+script), 0755)
	assert.True(t, err == nil)
	return fileName
}

// fakeTesseract echoes its ocr arguments as recognized text
const fakeTesseract = `
if [ "$1" = "--list-langs" ]; then
  echo 'List of available languages in "/usr/share/tessdata/" (3):'
  echo arm
  echo eng
  echo osd
  exit 0
fi
out="$2"
shift 2
echo "$*" > "$out.txt"
`

func testPage(width, height int) image.Image {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetGray(1, 1, color.Gray{Y: 0})
	return img
}

func TestTesseractEngineArgsExport(t *testing.T) {
	args := NewTesseractEngineArgs(EngineArgs{
		Lang:        "hye+arm",
		PageSegMode: 6,
		EngineMode:  3,
		ConfigVars: map[string]string{
			"tessedit_char_whitelist":   "0123456789",
			"preserve_interword_spaces": "1",
		},
	})
	expected := []string{
		"--oem", "3",
		"--psm", "6",
		"-c", "preserve_interword_spaces=1",
		"-c", "tessedit_char_whitelist=0123456789",
		"-l", "hye+arm",
	}
	assert.True(t, reflect.DeepEqual(args.Export(), expected))
	log.Info().Str("component", "TEST").Strs("args", args.Export()).Msg("exported")
}

func TestParseLanguageList(t *testing.T) {
	output := "List of available languages in \"/usr/share/tessdata/\" (3):\narm\nhye\n\neng\n"
	langs := parseLanguageList(output)
	assert.True(t, reflect.DeepEqual(langs, []string{"arm", "hye", "eng"}))

	assert.True(t, len(missingLanguages("hye+arm", langs)) == 0)
	assert.True(t, reflect.DeepEqual(missingLanguages("hye+arm", []string{"arm"}), []string{"hye"}))
	assert.True(t, reflect.DeepEqual(missingLanguages("hye+", nil), []string{"hye"}))
}

func TestTesseractEngineWithFakeBinary(t *testing.T) {
	dir := t.TempDir()
	engine := TesseractEngine{
		Binary:  writeFakeBinary(t, dir, "tesseract", fakeTesseract),
		TempDir: dir,
	}

	text, err := engine.Recognize(context.Background(), testPage(10, 10), EngineArgs{
		Lang:        "hye",
		PageSegMode: 3,
		EngineMode:  3,
		ConfigVars:  map[string]string{"preserve_interword_spaces": "1"},
	})
	assert.True(t, err == nil)
	assert.Equals(t, strings.TrimSpace(text), "--oem 3 --psm 3 -c preserve_interword_spaces=1 -l hye")

	// page image and text output are cleaned up, only the script remains
	files, err := ioutil.ReadDir(dir)
	assert.True(t, err == nil)
	assert.Equals(t, len(files), 1)

	langs, err := engine.ListLanguages(context.Background())
	assert.True(t, err == nil)
	assert.True(t, reflect.DeepEqual(langs, []string{"arm", "eng", "osd"}))
}

func TestTesseractEngineSaveFiles(t *testing.T) {
	dir := t.TempDir()
	engine := TesseractEngine{
		Binary:    writeFakeBinary(t, dir, "tesseract", fakeTesseract),
		TempDir:   dir,
		SaveFiles: true,
	}
	_, err := engine.Recognize(context.Background(), testPage(4, 4), EngineArgs{Lang: "arm", EngineMode: 3})
	assert.True(t, err == nil)

	pngs, _ := filepath.Glob(filepath.Join(dir, "*.png"))
	txts, _ := filepath.Glob(filepath.Join(dir, "*.txt"))
	assert.Equals(t, len(pngs), 1)
	assert.Equals(t, len(txts), 1)
}

func TestTesseractEngineFailure(t *testing.T) {
	dir := t.TempDir()
	engine := TesseractEngine{
		Binary:  writeFakeBinary(t, dir, "tesseract", "echo 'Failed loading language xyz' >&2\nexit 1\n"),
		TempDir: dir,
	}
	_, err := engine.Recognize(context.Background(), testPage(4, 4), EngineArgs{Lang: "xyz"})
	assert.True(t, err != nil)
	assert.True(t, strings.Contains(err.Error(), "Failed loading language xyz"))

	_, err = engine.ListLanguages(context.Background())
	assert.True(t, err != nil)
}

func TestTesseractEngineTimeout(t *testing.T) {
	dir := t.TempDir()
	engine := TesseractEngine{
		Binary:  writeFakeBinary(t, dir, "tesseract", "exec sleep 5\n"),
		TempDir: dir,
		Timeout: 100 * time.Millisecond,
	}
	_, err := engine.Recognize(context.Background(), testPage(4, 4), EngineArgs{Lang: "hye"})
	assert.True(t, err != nil)
	assert.True(t, strings.Contains(err.Error(), "timed out"))
}

func TestTesseractEngineMissingBinary(t *testing.T) {
	engine := TesseractEngine{
		Binary:  filepath.Join(t.TempDir(), "no-such-tesseract"),
		TempDir: t.TempDir(),
	}
	_, err := engine.Recognize(context.Background(), testPage(4, 4), EngineArgs{Lang: "hye"})
	assert.True(t, err != nil)
}

func TestTesseractEngineWithRealBinary(t *testing.T) {

	if testing.Short() {
		t.Skip("skipping test in short mode.")
	}
	if _, err := exec.LookPath(defaultTesseractBinary); err != nil {
		t.Skip("tesseract is not installed")
	}

	engine := TesseractEngine{TempDir: t.TempDir()}
	langs, err := engine.ListLanguages(context.Background())
	assert.True(t, err == nil)
	if len(missingLanguages("eng", langs)) > 0 {
		t.Skip("eng language pack is not installed")
	}

	// a blank page still has to give a (nearly) empty result, not an error
	text, err := engine.Recognize(context.Background(), testPage(200, 100), EngineArgs{
		Lang:        "eng",
		PageSegMode: 6,
		EngineMode:  3,
	})
	assert.True(t, err == nil)
	log.Info().Str("component", "TEST").Str("text", text).Msg("recognized blank page")

}
