package ocrsweep

import (
	"context"
	"fmt"
	"image"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/couchbaselabs/go.assert"
	"github.com/pkg/errors"
	"golang.org/x/image/tiff"
)

const fakePdfHeader = "%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<< /Type /Catalog >>\nendobj\n"

func writeTiffFixture(t *testing.T, fileName string, width, height int) {
	t.Helper()
	f, err := os.Create(fileName)
	assert.True(t, err == nil)
	defer f.Close()
	err = tiff.Encode(f, image.NewGray(image.Rect(0, 0, width, height)), &tiff.Options{Compression: tiff.Deflate})
	assert.True(t, err == nil)
}

// newFakePoppler writes pdfinfo and pdftoppm scripts to a bin dir. pdftoppm
// copies the tiff fixtures to <prefix>-N.tif like the real one.
func newFakePoppler(t *testing.T, pages int, rendered int) (PdfRasterizer, string) {
	t.Helper()
	binDir := t.TempDir()
	fixtureDir := t.TempDir()

	script := "for last; do :; done\n"
	for i := 1; i <= rendered; i++ {
		fixture := filepath.Join(fixtureDir, fmt.Sprintf("fixture%d.tif", i))
		writeTiffFixture(t, fixture, 10+i, 5)
		script += fmt.Sprintf("cp '%s' \"$last-%d.tif\"\n", fixture, i)
	}

	pdfPath := filepath.Join(t.TempDir(), "book.pdf")
	assert.True(t, ioutil.WriteFile(pdfPath, []byte(fakePdfHeader), 0600) == nil)

	rasterizer := PdfRasterizer{
		PdftoppmBinary: writeFakeBinary(t, binDir, "pdftoppm", script),
		PdfinfoBinary: writeFakeBinary(t, binDir, "pdfinfo",
			fmt.Sprintf("echo 'Producer:       scanner'\necho 'Pages:          %d'\n", pages)),
		DPI:     600,
		TempDir: t.TempDir(),
	}
	return rasterizer, pdfPath
}

func TestRasterizeWithFakePoppler(t *testing.T) {
	rasterizer, pdfPath := newFakePoppler(t, 2, 2)
	pages, err := rasterizer.Rasterize(context.Background(), pdfPath)
	assert.True(t, err == nil)
	assert.Equals(t, len(pages), 2)
	assert.Equals(t, pages[0].Index, 1)
	assert.Equals(t, pages[0].Image.Bounds().Dx(), 11)
	assert.Equals(t, pages[1].Index, 2)
	assert.Equals(t, pages[1].Image.Bounds().Dx(), 12)

	// the work directory is removed
	files, err := ioutil.ReadDir(rasterizer.TempDir)
	assert.True(t, err == nil)
	assert.Equals(t, len(files), 0)
}

func TestRasterizeKeepsPagesWithSaveFiles(t *testing.T) {
	rasterizer, pdfPath := newFakePoppler(t, 1, 1)
	rasterizer.SaveFiles = true
	_, err := rasterizer.Rasterize(context.Background(), pdfPath)
	assert.True(t, err == nil)

	kept, err := filepath.Glob(filepath.Join(rasterizer.TempDir, "*", pagePrefix+"-*.tif"))
	assert.True(t, err == nil)
	assert.Equals(t, len(kept), 1)
}

func TestRasterizeEmptyDocument(t *testing.T) {
	rasterizer, pdfPath := newFakePoppler(t, 0, 0)
	// pdftoppm must not be called for a document without pages
	rasterizer.PdftoppmBinary = writeFakeBinary(t, t.TempDir(), "pdftoppm", "exit 99\n")

	pages, err := rasterizer.Rasterize(context.Background(), pdfPath)
	assert.True(t, err == nil)
	assert.True(t, pages != nil)
	assert.Equals(t, len(pages), 0)
}

func TestRasterizeMissingPages(t *testing.T) {
	rasterizer, pdfPath := newFakePoppler(t, 3, 2)
	_, err := rasterizer.Rasterize(context.Background(), pdfPath)
	var convErr *ConversionError
	assert.True(t, errors.As(err, &convErr))
	assert.True(t, strings.Contains(err.Error(), "rendered 2 of 3 pages"))
}

func TestRasterizeFailingPdftoppm(t *testing.T) {
	rasterizer, pdfPath := newFakePoppler(t, 1, 1)
	rasterizer.PdftoppmBinary = writeFakeBinary(t, t.TempDir(), "pdftoppm",
		"echo \"Syntax Error: Couldn't read xref table\" >&2\nexit 1\n")

	_, err := rasterizer.Rasterize(context.Background(), pdfPath)
	var convErr *ConversionError
	assert.True(t, errors.As(err, &convErr))
	assert.Equals(t, convErr.Path, pdfPath)
	assert.True(t, strings.Contains(err.Error(), "xref table"))
}

func TestRasterizeRejectsBadInput(t *testing.T) {
	rasterizer := PdfRasterizer{DPI: 600, TempDir: t.TempDir()}
	var convErr *ConversionError

	_, err := rasterizer.Rasterize(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	assert.True(t, errors.As(err, &convErr))

	notPdf := filepath.Join(t.TempDir(), "scan.tif")
	writeTiffFixture(t, notPdf, 2, 2)
	_, err = rasterizer.Rasterize(context.Background(), notPdf)
	assert.True(t, errors.As(err, &convErr))
	assert.True(t, strings.Contains(err.Error(), "TIFF"))

	rasterizer.DPI = 0
	_, err = rasterizer.Rasterize(context.Background(), notPdf)
	assert.True(t, errors.As(err, &convErr))

	rasterizer.DPI = 300
	rasterizer.PdftoppmBinary = filepath.Join(t.TempDir(), "no-pdftoppm")
	pdfPath := filepath.Join(t.TempDir(), "book.pdf")
	assert.True(t, ioutil.WriteFile(pdfPath, []byte(fakePdfHeader), 0600) == nil)
	_, err = rasterizer.Rasterize(context.Background(), pdfPath)
	assert.True(t, errors.As(err, &convErr))
	assert.True(t, strings.Contains(err.Error(), "poppler"))
}

func TestParsePdfinfoPages(t *testing.T) {
	output := []byte("Title:          Anania Shirakatsi\nPages:          412\nEncrypted:      no\n")
	pages, err := parsePdfinfoPages(output)
	assert.True(t, err == nil)
	assert.Equals(t, pages, 412)

	_, err = parsePdfinfoPages([]byte("Title: x\n"))
	assert.True(t, err != nil)
	_, err = parsePdfinfoPages([]byte("Pages: many\n"))
	assert.True(t, err != nil)
}

func TestRenderedPageFilesOrder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"page-10.tif", "page-9.tif", "page-1.tif", "other.tif"} {
		assert.True(t, ioutil.WriteFile(filepath.Join(dir, name), nil, 0600) == nil)
	}
	files, err := renderedPageFiles(filepath.Join(dir, pagePrefix))
	assert.True(t, err == nil)
	assert.Equals(t, len(files), 3)
	assert.Equals(t, filepath.Base(files[0]), "page-1.tif")
	assert.Equals(t, filepath.Base(files[1]), "page-9.tif")
	assert.Equals(t, filepath.Base(files[2]), "page-10.tif")

	assert.Equals(t, pageIndexFromName("/tmp/x/page-007.tif"), 7)
	assert.Equals(t, pageIndexFromName("page.tif"), -1)
}
