package ocrsweep

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/couchbaselabs/go.assert"
)

func TestDefaultMethods(t *testing.T) {
	methods := DefaultMethods()
	assert.Equals(t, len(methods), 5)
	assert.True(t, ValidateMethods(methods) == nil)

	third := methods[2]
	assert.Equals(t, third.Name, "Method_3_Original_HYE+ARM")
	assert.Equals(t, third.Lang, "hye+arm")
	assert.Equals(t, third.Preprocessor, PreprocessorPassThrough)
	assert.Equals(t, third.PageSegMode, 6)
	assert.Equals(t, third.OutputFileName(), "Method_3_Original_HYE+ARM.txt")

	assert.Equals(t, methods[3].Lang, "hye")
	assert.Equals(t, methods[4].PageSegMode, 3)

	for _, m := range methods {
		assert.True(t, m.Preprocessor != PreprocessorInverted)
	}
}

func TestValidateMethods(t *testing.T) {
	valid := Method{Name: "m", Lang: "hye", Preprocessor: PreprocessorGentle, PageSegMode: 6}
	assert.True(t, valid.Validate() == nil)

	cases := []Method{
		{Name: "", Lang: "hye"},
		{Name: "../escape", Lang: "hye"},
		{Name: "..", Lang: "hye"},
		{Name: "m", Lang: " "},
		{Name: "m", Lang: "hye", PageSegMode: 14},
		{Name: "m", Lang: "hye", PageSegMode: -1},
		{Name: "m", Lang: "hye", Preprocessor: PreprocessorType(9)},
	}
	for _, c := range cases {
		assert.True(t, c.Validate() != nil)
	}

	// output files would collide on case insensitive file systems
	dup := []Method{valid, {Name: "M", Lang: "arm"}}
	assert.True(t, ValidateMethods(dup) != nil)
}

func TestParseMethodsYaml(t *testing.T) {
	data := []byte(`
methods:
  - name: Plain_ARM
    lang: arm
    preprocessor: pass-through
    psm: 4
  - name: Dark_HYE
    lang: hye
    preprocessor: inverted
    psm: 6
`)
	methods, err := ParseMethods(data)
	assert.True(t, err == nil)
	assert.Equals(t, len(methods), 2)
	assert.Equals(t, methods[0].Name, "Plain_ARM")
	assert.Equals(t, methods[0].Preprocessor, PreprocessorPassThrough)
	assert.Equals(t, methods[0].PageSegMode, 4)
	assert.Equals(t, methods[1].Preprocessor, PreprocessorInverted)
}

func TestLoadMethodsJson(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "methods.json")
	data := `{"methods": [{"name": "Only_HYE", "lang": "hye", "preprocessor": "aggressive", "psm": 6}]}`
	assert.True(t, ioutil.WriteFile(fileName, []byte(data), 0600) == nil)

	methods, err := LoadMethods(fileName)
	assert.True(t, err == nil)
	assert.Equals(t, len(methods), 1)
	assert.Equals(t, methods[0].Preprocessor, PreprocessorAggressive)

	_, err = LoadMethods(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, err != nil)
}

func TestParseMethodsRejectsBadTables(t *testing.T) {
	_, err := ParseMethods([]byte("methods: []"))
	assert.True(t, err != nil)
	_, err = ParseMethods([]byte("methods:\n  - name: x\n    lang: hye\n    preprocessor: sepia\n"))
	assert.True(t, err != nil)
	_, err = ParseMethods([]byte("methods:\n  - name: x\n    lang: hye\n  - name: x\n    lang: arm\n"))
	assert.True(t, err != nil)
}

func TestFilterMethods(t *testing.T) {
	methods := DefaultMethods()

	all, err := FilterMethods(methods, nil)
	assert.True(t, err == nil)
	assert.Equals(t, len(all), 5)

	// table order wins over filter order
	some, err := FilterMethods(methods, []string{"Method_5_HYE+ARM_AutoDetect_PSM3", "Method_2_HYE+ARM_Gentle"})
	assert.True(t, err == nil)
	assert.Equals(t, len(some), 2)
	assert.Equals(t, some[0].Name, "Method_2_HYE+ARM_Gentle")
	assert.Equals(t, some[1].Name, "Method_5_HYE+ARM_AutoDetect_PSM3")

	_, err = FilterMethods(methods, []string{"Method_9"})
	assert.True(t, err != nil)
}
