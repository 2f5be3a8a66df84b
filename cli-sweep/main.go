package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	ocrsweep "github.com/xf0e/ocr-sweep"
)

// Runs all OCR methods over a scanned PDF and writes one text file per method.
// To try it without tesseract installed:
// ocr-sweep --engine mock --output_dir /tmp/ocr_outputs book.pdf

func init() {
	zerolog.TimeFieldFormat = time.StampMilli
	// Default level is info, unless debug flag is present
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMilli})
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	sweepConfig := ocrsweep.DefaultSweepConfig()

	cmd := &cobra.Command{
		Use:   "ocr-sweep [flags] [file.pdf]",
		Short: "Compare OCR preprocessing and engine settings on a scanned PDF",
		Long: `ocr-sweep renders every page of a scanned PDF and recognizes it with
several preprocessing and tesseract configurations. Every configuration
writes its own text file, so the results can be compared side by side.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				sweepConfig.PdfPath = args[0]
			}
			return run(cmd.Context(), sweepConfig)
		},
	}
	sweepConfig.AddFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, sweepConfig ocrsweep.SweepConfig) error {
	if sweepConfig.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if err := sweepConfig.ResolveMethods(); err != nil {
		log.Error().Err(err).Str("component", "OCR_SWEEP").Msg("could not build method table")
		return err
	}
	log.Debug().Interface("sweepConfig", sweepConfig).Msg("parameter list of sweepConfig")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	engine, err := ocrsweep.NewOcrEngine(sweepConfig.Engine, sweepConfig)
	if err != nil {
		log.Error().Err(err).Str("component", "OCR_SWEEP").Msg("could not create ocr engine")
		return err
	}

	progress := ocrsweep.NewSweepProgress()
	metrics := ocrsweep.NewSweepMetrics()
	opts := []ocrsweep.SweeperOption{
		ocrsweep.WithProgress(progress),
		ocrsweep.WithMetrics(metrics),
	}

	if sweepConfig.Rabbit.Enabled() {
		publisher, err := ocrsweep.NewAmqpResultPublisher(sweepConfig.Rabbit)
		if err != nil {
			log.Warn().Err(err).Str("component", "OCR_SWEEP").Msg("output files will not be announced")
		} else {
			defer publisher.Close()
			opts = append(opts, ocrsweep.WithPublisher(publisher))
		}
	}

	sweeper, err := ocrsweep.NewSweeper(sweepConfig, engine, opts...)
	if err != nil {
		log.Error().Err(err).Str("component", "OCR_SWEEP").Msg("could not set up sweep")
		return err
	}

	if sweepConfig.HttpPort > 0 {
		ocrsweep.StartStatusServer(ctx, sweepConfig.HttpPort, ocrsweep.NewStatusMux(progress, metrics))
	}

	report, err := sweeper.Run(ctx)
	writeMetricsFile(sweepConfig.MetricsFile, metrics)

	if err != nil {
		return sweepError(ctx, err)
	}

	for _, m := range report.Methods {
		log.Info().Str("component", "OCR_SWEEP").Str("file", m.OutputFile).
			Int("failed_pages", len(m.FailedPages)).Dur("took", m.Duration).Msg(m.Method.Name)
	}
	log.Info().Str("component", "OCR_SWEEP").Str("output_dir", sweepConfig.OutputDir).
		Int("methods", len(report.Methods)).Int("pages", report.Pages).
		Msg("ALL METHODS COMPLETED! Compare the files and use the one with the best accuracy")
	return nil
}

func writeMetricsFile(fileName string, metrics *ocrsweep.SweepMetrics) {
	if fileName == "" {
		return
	}
	if err := metrics.WriteToTextfile(fileName); err != nil {
		log.Warn().Err(err).Str("component", "OCR_SWEEP").Str("file", fileName).Msg("could not write metrics")
	}
}

// sweepError decides the exit status of a failed run. A PDF that could not be
// converted ends the run without output but is not a failure, an interrupted
// run is.
func sweepError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Error().Err(err).Str("component", "OCR_SWEEP").Msg("sweep interrupted")
		return ctxErr
	}
	var conversionErr *ocrsweep.ConversionError
	if errors.As(err, &conversionErr) {
		// nothing has been written, the run just ends here
		log.Error().Err(err).Str("component", "OCR_SWEEP").
			Msg("ERROR converting PDF. Ensure poppler (pdftoppm, pdfinfo) is installed and the file is a readable PDF")
		return nil
	}
	log.Error().Err(err).Str("component", "OCR_SWEEP").Msg("sweep failed")
	return err
}
