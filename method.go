package ocrsweep

import (
	"io/ioutil"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// tesseract accepts page segmentation modes 0..13
	maxPageSegMode = 13
	outputFileExt  = ".txt"
)

// Method is one complete OCR configuration swept over all pages
type Method struct {
	Name         string           `json:"name" yaml:"name"`
	Lang         string           `json:"lang" yaml:"lang"`
	Preprocessor PreprocessorType `json:"preprocessor" yaml:"preprocessor"`
	PageSegMode  int              `json:"psm" yaml:"psm"`
}

// DefaultMethods is the comparison table used when no methods file is given.
// "hye+arm" combines both Armenian traineddata packs.
func DefaultMethods() []Method {
	return []Method{
		{
			Name:         "Method_1_HYE+ARM_Aggressive",
			Lang:         "hye+arm",
			Preprocessor: PreprocessorAggressive,
			PageSegMode:  6,
		},
		{
			Name:         "Method_2_HYE+ARM_Gentle",
			Lang:         "hye+arm",
			Preprocessor: PreprocessorGentle,
			PageSegMode:  6,
		},
		{
			Name:         "Method_3_Original_HYE+ARM",
			Lang:         "hye+arm",
			Preprocessor: PreprocessorPassThrough,
			PageSegMode:  6,
		},
		{
			Name:         "Method_4_HYE_Aggressive",
			Lang:         "hye",
			Preprocessor: PreprocessorAggressive,
			PageSegMode:  6,
		},
		{
			Name:         "Method_5_HYE+ARM_AutoDetect_PSM3",
			Lang:         "hye+arm",
			Preprocessor: PreprocessorGentle,
			PageSegMode:  3,
		},
	}
}

// InvertedMethod is not part of DefaultMethods, it is appended on request
// for scans with light text on a dark background.
func InvertedMethod() Method {
	return Method{
		Name:         "Method_6_HYE+ARM_Inverted",
		Lang:         "hye+arm",
		Preprocessor: PreprocessorInverted,
		PageSegMode:  6,
	}
}

// OutputFileName is the name of the file the method's text is written to
func (m Method) OutputFileName() string {
	return m.Name + outputFileExt
}

func (m Method) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("method name must not be empty")
	}
	if m.Name == "." || m.Name == ".." || strings.ContainsAny(m.Name, `/\`) || strings.ContainsRune(m.Name, 0) {
		return errors.Errorf("method name %q can not be used as a file name", m.Name)
	}
	if strings.TrimSpace(m.Lang) == "" {
		return errors.Errorf("method %s: lang must not be empty", m.Name)
	}
	if m.PageSegMode < 0 || m.PageSegMode > maxPageSegMode {
		return errors.Errorf("method %s: psm %d out of range 0..%d", m.Name, m.PageSegMode, maxPageSegMode)
	}
	if m.Preprocessor.String() == "" {
		return errors.Errorf("method %s: unknown preprocessor type %d", m.Name, int(m.Preprocessor))
	}
	return nil
}

// ValidateMethods checks every method and that no two methods would write
// to the same output file.
func ValidateMethods(methods []Method) error {
	seen := make(map[string]bool, len(methods))
	for _, m := range methods {
		if err := m.Validate(); err != nil {
			return err
		}
		key := strings.ToLower(m.OutputFileName())
		if seen[key] {
			return errors.Errorf("duplicate method name %q", m.Name)
		}
		seen[key] = true
	}
	return nil
}

type methodsFile struct {
	Methods []Method `yaml:"methods"`
}

// LoadMethods reads a method table from a YAML file. JSON files work too
// since JSON is valid YAML.
func LoadMethods(fileName string) ([]Method, error) {
	data, err := ioutil.ReadFile(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read methods file %s", fileName)
	}
	return ParseMethods(data)
}

func ParseMethods(data []byte) ([]Method, error) {
	var parsed methodsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, errors.Wrap(err, "could not parse methods")
	}
	if len(parsed.Methods) == 0 {
		return nil, errors.New("methods file lists no methods")
	}
	if err := ValidateMethods(parsed.Methods); err != nil {
		return nil, err
	}
	return parsed.Methods, nil
}

// FilterMethods keeps the methods named in only, in table order.
// An empty filter keeps all methods.
func FilterMethods(methods []Method, only []string) ([]Method, error) {
	if len(only) == 0 {
		return methods, nil
	}
	wanted := make(map[string]bool, len(only))
	for _, name := range only {
		wanted[name] = true
	}
	var result []Method
	for _, m := range methods {
		if wanted[m.Name] {
			result = append(result, m)
			delete(wanted, m.Name)
		}
	}
	for name := range wanted {
		return nil, errors.Errorf("unknown method %q", name)
	}
	return result, nil
}
