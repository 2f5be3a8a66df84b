package ocrsweep

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
)

// MethodResult describes one persisted method output file
type MethodResult struct {
	Method      Method
	OutputFile  string
	Pages       int
	FailedPages []int
	Duration    time.Duration
	FinishedAt  time.Time
}

type SweepReport struct {
	RunID   string
	PdfPath string
	Pages   int
	Methods []MethodResult
}

// FailedPages sums the failed pages over all methods
func (r SweepReport) FailedPages() int {
	n := 0
	for _, m := range r.Methods {
		n += len(m.FailedPages)
	}
	return n
}

// Sweeper runs every configured method over every page of a document, one
// page and one method at a time.
type Sweeper struct {
	sweepConfig SweepConfig
	engine      OcrEngine
	rasterizer  PageRasterizer
	progress    *SweepProgress
	metrics     *SweepMetrics
	publisher   ResultPublisher
	runID       string
}

type SweeperOption func(*Sweeper)

func WithRasterizer(rasterizer PageRasterizer) SweeperOption {
	return func(s *Sweeper) { s.rasterizer = rasterizer }
}

func WithProgress(progress *SweepProgress) SweeperOption {
	return func(s *Sweeper) { s.progress = progress }
}

func WithMetrics(metrics *SweepMetrics) SweeperOption {
	return func(s *Sweeper) { s.metrics = metrics }
}

// WithPublisher announces every written output file through publisher
func WithPublisher(publisher ResultPublisher) SweeperOption {
	return func(s *Sweeper) { s.publisher = publisher }
}

func NewSweeper(sweepConfig SweepConfig, engine OcrEngine, opts ...SweeperOption) (*Sweeper, error) {
	if engine == nil {
		return nil, errors.New("no ocr engine given")
	}
	if err := sweepConfig.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid sweep config")
	}

	s := &Sweeper{
		sweepConfig: sweepConfig,
		engine:      engine,
		runID:       ksuid.New().String(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rasterizer == nil {
		s.rasterizer = NewPdfRasterizer(sweepConfig)
	}
	if s.progress == nil {
		s.progress = NewSweepProgress()
	}
	if s.metrics == nil {
		s.metrics = NewSweepMetrics()
	}
	return s, nil
}

func (s *Sweeper) RunID() string {
	return s.runID
}

// Run rasterizes the configured PDF and sweeps all methods over its pages.
// A *ConversionError means nothing has been written. Cancellation is
// reported as the context's error.
func (s *Sweeper) Run(ctx context.Context) (*SweepReport, error) {
	pdfPath := s.sweepConfig.PdfPath
	s.progress.start(s.runID, pdfPath, len(s.sweepConfig.Methods))

	log.Info().Str("component", "SWEEP").Str("run_id", s.runID).Int("dpi", s.sweepConfig.DPI).
		Msg("Converting PDF to images, this may take several minutes")

	start := time.Now()
	pages, err := s.rasterizer.Rasterize(ctx, pdfPath)
	if err != nil {
		// a killed pdftoppm is an interruption, not a broken document
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		s.progress.finish(err)
		return nil, err
	}
	s.metrics.observeRasterized(len(pages), time.Since(start).Seconds())
	timeTrack(start, "rasterize_duration", "PDF converted", s.runID)

	log.Info().Str("component", "SWEEP").Int("pages", len(pages)).Int("methods", len(s.sweepConfig.Methods)).
		Str("output_dir", s.sweepConfig.OutputDir).Msg("Found pages, starting sweep")

	s.checkLanguages(ctx)

	return s.SweepPages(ctx, pages)
}

// SweepPages runs the methods over already rasterized pages. Pages are only
// read, never modified.
func (s *Sweeper) SweepPages(ctx context.Context, pages []Page) (*SweepReport, error) {
	if s.progress.Snapshot().State == StateNotStarted {
		s.progress.start(s.runID, s.sweepConfig.PdfPath, len(s.sweepConfig.Methods))
	}
	s.progress.rasterized(len(pages))

	report := &SweepReport{
		RunID:   s.runID,
		PdfPath: s.sweepConfig.PdfPath,
		Pages:   len(pages),
	}
	for i, method := range s.sweepConfig.Methods {
		s.progress.methodStarted(i+1, method.Name)
		result, err := s.RunMethod(ctx, method, pages)
		if err != nil {
			s.progress.finish(err)
			return report, err
		}
		report.Methods = append(report.Methods, result)
		s.publish(result)
	}
	s.progress.finish(nil)
	return report, nil
}

// RunMethod processes all pages in order with one method and writes the
// output file once all pages are done. Page failures end up inline in the
// file; only cancellation and write errors are returned.
func (s *Sweeper) RunMethod(ctx context.Context, method Method, pages []Page) (MethodResult, error) {
	start := time.Now()
	log.Info().Str("component", "SWEEP").Str("method", method.Name).Str("lang", method.Lang).
		Int("psm", method.PageSegMode).Str("preprocessor", method.Preprocessor.String()).Msg("Processing")

	preprocessor, err := NewPreprocessor(method.Preprocessor)
	if err != nil {
		return MethodResult{}, err
	}

	results := make([]PageResult, 0, len(pages))
	var failedPages []int
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return MethodResult{}, err
		}

		pageStart := time.Now()
		result := s.recognizePage(ctx, preprocessor, method, page)
		if result.Failed() && ctx.Err() != nil {
			return MethodResult{}, ctx.Err()
		}
		s.metrics.observePage(method.Name, result.Failed(), time.Since(pageStart).Seconds())
		s.progress.pageDone(page.Index, result.Failed())

		if result.Failed() {
			failedPages = append(failedPages, page.Index)
			log.Warn().Str("component", "SWEEP").Str("method", method.Name).Int("page", page.Index).
				Int("pages", len(pages)).Err(result.Err).Msg("page failed, error marker written")
		} else {
			log.Info().Str("component", "SWEEP").Str("method", method.Name).Int("page", page.Index).
				Int("pages", len(pages)).Msg("page done")
		}
		results = append(results, result)
	}

	outputFile, err := writeMethodOutput(s.sweepConfig.OutputDir, method, RenderPages(results))
	if err != nil {
		return MethodResult{}, err
	}
	s.metrics.observeMethodCompleted()
	s.progress.methodWritten(outputFile)
	log.Info().Str("component", "SWEEP").Str("method", method.Name).Str("file", outputFile).Msg("Saved")

	return MethodResult{
		Method:      method,
		OutputFile:  outputFile,
		Pages:       len(pages),
		FailedPages: failedPages,
		Duration:    time.Since(start),
		FinishedAt:  time.Now(),
	}, nil
}

func (s *Sweeper) recognizePage(ctx context.Context, preprocessor Preprocessor, method Method, page Page) (result PageResult) {
	result.Index = page.Index

	// a crashing engine must not end the sweep
	defer func() {
		if r := recover(); r != nil {
			result = PageResult{Index: page.Index, Err: errors.Errorf("ocr engine panicked: %v", r)}
		}
	}()

	processed, err := preprocessor.Preprocess(page.Image)
	if err != nil {
		result.Err = errors.Wrap(err, "preprocessing failed")
		return result
	}

	text, err := s.engine.Recognize(ctx, processed, EngineArgs{
		Lang:        method.Lang,
		PageSegMode: method.PageSegMode,
		EngineMode:  defaultEngineMode,
		ConfigVars:  map[string]string{"preserve_interword_spaces": "1"},
	})
	if err != nil {
		result.Err = err
		return result
	}
	result.Text = text
	return result
}

type languageLister interface {
	ListLanguages(ctx context.Context) ([]string, error)
}

// checkLanguages warns about methods whose language packs are not installed.
// Their pages will carry error markers, the sweep still runs them.
func (s *Sweeper) checkLanguages(ctx context.Context) {
	lister, ok := s.engine.(languageLister)
	if !ok {
		return
	}
	available, err := lister.ListLanguages(ctx)
	if err != nil {
		log.Warn().Err(err).Str("component", "SWEEP").Msg("could not list installed language packs")
		return
	}
	for _, method := range s.sweepConfig.Methods {
		if missing := missingLanguages(method.Lang, available); len(missing) > 0 {
			log.Warn().Str("component", "SWEEP").Str("method", method.Name).Strs("missing", missing).
				Msg("language packs not installed")
		}
	}
}

func (s *Sweeper) publish(result MethodResult) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(newMethodNotice(s.runID, result)); err != nil {
		log.Warn().Err(err).Str("component", "PUBLISHER").Str("method", result.Method.Name).
			Msg("could not announce output file")
	}
}

// writeMethodOutput writes content to outputDir/<method>.txt through a
// temporary file, so a file with the method's name is always complete.
func writeMethodOutput(outputDir string, method Method, content string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", errors.Wrapf(err, "could not create output directory %s", outputDir)
	}
	outputFile := filepath.Join(outputDir, method.OutputFileName())

	tmpFileName, err := createTempFileName(outputDir, "")
	if err != nil {
		return "", err
	}
	tmpFileName += ".tmp"
	if err := ioutil.WriteFile(tmpFileName, []byte(content), 0644); err != nil {
		removeFile(tmpFileName, "SWEEP")
		return "", errors.Wrapf(err, "could not write %s", outputFile)
	}
	if err := os.Rename(tmpFileName, outputFile); err != nil {
		removeFile(tmpFileName, "SWEEP")
		return "", errors.Wrapf(err, "could not write %s", outputFile)
	}
	return outputFile, nil
}
