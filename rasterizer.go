package ocrsweep

/*	The rasterizer renders every page of a PDF into a bitmap with poppler's
	pdftoppm. Pages are written as TIFF files into a work directory and
	decoded in page order.

	The page count is taken from pdfinfo first, so a document without pages
	gives an empty page list instead of a pdftoppm page range error.
*/

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/tiff"
)

const (
	defaultPdftoppmBinary = "pdftoppm"
	defaultPdfinfoBinary  = "pdfinfo"
	pagePrefix            = "page"
)

// Page is one rasterized PDF page. Index starts at 1.
type Page struct {
	Index int
	Image image.Image
}

// ConversionError is returned for every failure turning a PDF into page images
type ConversionError struct {
	Path string
	Err  error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("could not convert %s to images: %v", e.Path, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Cause lets errors.Cause of pkg/errors look through the conversion error
func (e *ConversionError) Cause() error { return e.Err }

type PageRasterizer interface {
	Rasterize(ctx context.Context, pdfPath string) ([]Page, error)
}

type PdfRasterizer struct {
	PdftoppmBinary string
	PdfinfoBinary  string
	DPI            int
	TempDir        string
	SaveFiles      bool
}

func NewPdfRasterizer(sweepConfig SweepConfig) PdfRasterizer {
	return PdfRasterizer{
		PdftoppmBinary: sweepConfig.PdftoppmPath,
		PdfinfoBinary:  sweepConfig.PdfinfoPath,
		DPI:            sweepConfig.DPI,
		TempDir:        sweepConfig.WorkDir,
		SaveFiles:      sweepConfig.SaveFiles,
	}
}

func (r PdfRasterizer) binaries() (pdftoppm string, pdfinfo string) {
	pdftoppm, pdfinfo = r.PdftoppmBinary, r.PdfinfoBinary
	if pdftoppm == "" {
		pdftoppm = defaultPdftoppmBinary
	}
	if pdfinfo == "" {
		pdfinfo = defaultPdfinfoBinary
	}
	return pdftoppm, pdfinfo
}

func (r PdfRasterizer) Rasterize(ctx context.Context, pdfPath string) ([]Page, error) {
	convErr := func(err error) error {
		log.Error().Err(err).Str("component", "RASTERIZER").Str("pdf", pdfPath).Msg("conversion failed")
		return &ConversionError{Path: pdfPath, Err: err}
	}

	if r.DPI <= 0 {
		return nil, convErr(errors.Errorf("invalid resolution %d dpi", r.DPI))
	}

	buffer, err := readFirstBytes(pdfPath, 64)
	if err != nil {
		return nil, convErr(err)
	}
	if fileType := detectFileType(buffer); fileType != "PDF" {
		return nil, convErr(errors.Errorf("not a PDF file (detected %s)", fileType))
	}

	pdftoppm, pdfinfo := r.binaries()
	for _, binary := range []string{pdftoppm, pdfinfo} {
		if _, err := exec.LookPath(binary); err != nil {
			return nil, convErr(errors.Wrap(err, "poppler utilities are required"))
		}
	}

	numPages, err := countPdfPages(ctx, pdfinfo, pdfPath)
	if err != nil {
		return nil, convErr(err)
	}
	log.Info().Str("component", "RASTERIZER").Str("pdf", pdfPath).Int("pages", numPages).
		Int("dpi", r.DPI).Msg("Convert PDF")
	if numPages == 0 {
		return []Page{}, nil
	}

	workDir, err := createTempFileName(r.TempDir, "")
	if err != nil {
		return nil, convErr(err)
	}
	if err := os.MkdirAll(workDir, 0700); err != nil {
		return nil, convErr(errors.Wrap(err, "could not create work directory"))
	}
	if r.SaveFiles {
		log.Info().Str("component", "RASTERIZER").Str("workDir", workDir).Msg("keeping rendered pages")
	} else {
		defer func() {
			if err := os.RemoveAll(workDir); err != nil {
				log.Warn().Err(err).Str("component", "RASTERIZER").Msg(workDir + " could not be removed")
			}
		}()
	}

	prefix := filepath.Join(workDir, pagePrefix)
	popplerArgs := []string{
		"-r", strconv.Itoa(r.DPI),
		"-f", "1",
		"-l", strconv.Itoa(numPages),
		"-tiff",
		"-tiffcompression", "lzw",
		pdfPath,
		prefix,
	}
	log.Debug().Str("component", "RASTERIZER").Strs("popplerArgs", popplerArgs).Msg("exec pdftoppm")

	out, err := exec.CommandContext(ctx, pdftoppm, popplerArgs...).CombinedOutput()
	if err != nil {
		return nil, convErr(errors.Errorf("pdftoppm failed (%v): %s", err, strings.TrimSpace(string(out))))
	}

	files, err := renderedPageFiles(prefix)
	if err != nil {
		return nil, convErr(err)
	}
	if len(files) != numPages {
		return nil, convErr(errors.Errorf("pdftoppm rendered %d of %d pages", len(files), numPages))
	}

	pages := make([]Page, 0, len(files))
	for i, file := range files {
		img, err := decodeTiffFile(file)
		if err != nil {
			return nil, convErr(err)
		}
		pages = append(pages, Page{Index: i + 1, Image: img})
	}
	return pages, nil
}

// countPdfPages reads the "Pages:" line of pdfinfo output
func countPdfPages(ctx context.Context, pdfinfo string, pdfPath string) (int, error) {
	output, err := exec.CommandContext(ctx, pdfinfo, pdfPath).CombinedOutput()
	if err != nil {
		return 0, errors.Errorf("pdfinfo failed (%v): %s", err, strings.TrimSpace(string(output)))
	}
	return parsePdfinfoPages(output)
}

func parsePdfinfoPages(output []byte) (int, error) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "Pages:") {
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				if total, convErr := strconv.Atoi(parts[1]); convErr == nil {
					return total, nil
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, errors.New("pdfinfo could not determine number of pages")
}

// renderedPageFiles finds prefix-N.tif files in page order. pdftoppm pads N
// with zeros depending on the page count.
func renderedPageFiles(prefix string) ([]string, error) {
	matches, err := filepath.Glob(prefix + "-*.tif")
	if err != nil {
		return nil, err
	}
	sort.Slice(matches, func(i, j int) bool {
		return pageIndexFromName(matches[i]) < pageIndexFromName(matches[j])
	})
	return matches, nil
}

func pageIndexFromName(name string) int {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	idx := strings.LastIndex(base, "-")
	if idx == -1 {
		return -1
	}
	n, err := strconv.Atoi(base[idx+1:])
	if err != nil {
		return -1
	}
	return n
}

func decodeTiffFile(fileName string) (image.Image, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := tiff.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "could not decode %s", filepath.Base(fileName))
	}
	return img, nil
}
