package ocrsweep

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

const defaultDPI = 600

// SweepConfig holds everything a sweep run needs. It replaces process wide
// constants so several sweeps can run side by side, eg in tests.
type SweepConfig struct {
	PdfPath       string
	OutputDir     string
	WorkDir       string
	TesseractPath string
	PdftoppmPath  string
	PdfinfoPath   string
	DPI           int
	Engine        OcrEngineType
	OcrTimeout    time.Duration
	Methods       []Method
	MethodsFile   string
	Only          []string
	WithInverted  bool
	SaveFiles     bool
	Debug         bool
	HttpPort      uint
	MetricsFile   string
	Rabbit        RabbitConfig
}

func DefaultSweepConfig() SweepConfig {

	sweepConfig := SweepConfig{
		PdfPath:       "Anania_Shirakatsi_1979.pdf",
		OutputDir:     "ocr_outputs",
		WorkDir:       "",
		TesseractPath: defaultTesseractBinary,
		PdftoppmPath:  defaultPdftoppmBinary,
		PdfinfoPath:   defaultPdfinfoBinary,
		DPI:           defaultDPI, // quality over speed
		Engine:        EngineTesseract,
		OcrTimeout:    0,
		Methods:       DefaultMethods(),
		SaveFiles:     false,
		Debug:         false,
		HttpPort:      0,
		Rabbit:        DefaultRabbitConfig(),
	}
	return sweepConfig

}

// AddFlags binds the overridable fields of c to flags, current values are the defaults
func (c *SweepConfig) AddFlags(flags *pflag.FlagSet) {
	flags.StringVar(
		&c.PdfPath,
		"pdf",
		c.PdfPath,
		"the scanned PDF to process, may also be given as argument",
	)
	flags.StringVar(
		&c.OutputDir,
		"output_dir",
		c.OutputDir,
		"directory the method text files are written to, created if absent",
	)
	flags.StringVar(
		&c.WorkDir,
		"work_dir",
		c.WorkDir,
		"directory for intermediate page images, defaults to the system temp dir",
	)
	flags.StringVar(
		&c.TesseractPath,
		"tesseract",
		c.TesseractPath,
		"tesseract binary, eg /opt/homebrew/bin/tesseract",
	)
	flags.StringVar(
		&c.PdftoppmPath,
		"pdftoppm",
		c.PdftoppmPath,
		"poppler pdftoppm binary",
	)
	flags.StringVar(
		&c.PdfinfoPath,
		"pdfinfo",
		c.PdfinfoPath,
		"poppler pdfinfo binary",
	)
	flags.IntVar(
		&c.DPI,
		"dpi",
		c.DPI,
		"rasterization resolution in dots per inch",
	)
	flags.Var(
		&c.Engine,
		"engine",
		"ocr engine: tesseract, go_tesseract (needs -tags gosseract) or mock",
	)
	flags.DurationVar(
		&c.OcrTimeout,
		"ocr_timeout",
		c.OcrTimeout,
		"time limit of a single tesseract call, 0 means no limit",
	)
	flags.StringVar(
		&c.MethodsFile,
		"methods",
		c.MethodsFile,
		"YAML or JSON file with the method table, replaces the built-in table",
	)
	flags.StringSliceVar(
		&c.Only,
		"only",
		c.Only,
		"run only the named methods, may be repeated",
	)
	flags.BoolVar(
		&c.WithInverted,
		"with_inverted",
		c.WithInverted,
		"append the inverted colours method to the table",
	)
	flags.BoolVar(
		&c.SaveFiles,
		"save_files",
		c.SaveFiles,
		"if set there will be no clean up of temporary files",
	)
	flags.BoolVar(
		&c.Debug,
		"debug",
		c.Debug,
		"sets debug flag, program will print more messages",
	)
	flags.UintVar(
		&c.HttpPort,
		"http_port",
		c.HttpPort,
		"serve /status and /metrics on this port while sweeping, 0 disables",
	)
	flags.StringVar(
		&c.MetricsFile,
		"metrics_file",
		c.MetricsFile,
		"write prometheus metrics to this file after the run",
	)
	c.Rabbit.AddFlags(flags)
}

// ResolveMethods builds the final method table from the methods file, the
// inverted switch and the method filter.
func (c *SweepConfig) ResolveMethods() error {
	if c.MethodsFile != "" {
		methods, err := LoadMethods(c.MethodsFile)
		if err != nil {
			return err
		}
		c.Methods = methods
	}
	if c.WithInverted {
		c.Methods = append(c.Methods, InvertedMethod())
	}
	methods, err := FilterMethods(c.Methods, c.Only)
	if err != nil {
		return err
	}
	c.Methods = methods
	return nil
}

func (c SweepConfig) Validate() error {
	if c.PdfPath == "" {
		return errors.New("no PDF file given")
	}
	if c.OutputDir == "" {
		return errors.New("output directory must not be empty")
	}
	if c.DPI <= 0 {
		return errors.Errorf("dpi must be positive, got %d", c.DPI)
	}
	if c.OcrTimeout < 0 {
		return errors.Errorf("ocr_timeout must not be negative, got %v", c.OcrTimeout)
	}
	if c.Engine.String() == "" {
		return errors.Errorf("unknown ocr engine type %d", int(c.Engine))
	}
	if len(c.Methods) == 0 {
		return errors.New("no methods to run")
	}
	return ValidateMethods(c.Methods)
}
