package ocrsweep

import (
	"strconv"
	"strings"
)

const (
	bannerWidth = 50
	// "Page" in Armenian
	pageLabel         = "Էջ"
	errorMarkerPrefix = "Error: "
)

var pageBanner = strings.Repeat("=", bannerWidth)

// PageResult is the outcome of one page under one method. Err is set when
// preprocessing or recognition failed; Text is empty then.
type PageResult struct {
	Index int
	Text  string
	Err   error
}

func (r PageResult) Failed() bool {
	return r.Err != nil
}

// Body is the text that goes into the page slot of the output file. Failed
// pages carry an inline error marker so the file stays complete.
func (r PageResult) Body() string {
	if r.Err != nil {
		return errorMarkerPrefix + r.Err.Error()
	}
	return r.Text
}

// writePage appends the banner block and body of one page to sb
func writePage(sb *strings.Builder, r PageResult) {
	sb.WriteString("\n")
	sb.WriteString(pageBanner)
	sb.WriteString("\n")
	sb.WriteString(pageLabel)
	sb.WriteString(" ")
	sb.WriteString(strconv.Itoa(r.Index))
	sb.WriteString("\n")
	sb.WriteString(pageBanner)
	sb.WriteString("\n\n")
	sb.WriteString(r.Body())
	sb.WriteString("\n")
}

// RenderPages builds the content of a method output file
func RenderPages(results []PageResult) string {
	var sb strings.Builder
	for _, r := range results {
		writePage(&sb, r)
	}
	return sb.String()
}
