package kag

import (
	"bytes"
	"os"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/ledongthuc/pdf"
	"github.com/sirupsen/logrus"
)

// Input types accepted by the text extractor.
const (
	InputTypePDF  = "pdf"
	InputTypeHTML = "html"
	InputTypeText = "text"
)

// TextExtractor pulls raw text out of a source document. Extraction never
// returns an error: failures are logged and yield empty text, so the
// pipeline reports a missing-text error instead of crashing mid-request.
type TextExtractor struct {
	logger *logrus.Logger
}

// NewTextExtractor creates a text extractor.
func NewTextExtractor(logger *logrus.Logger) *TextExtractor {
	return &TextExtractor{logger: logger}
}

// ExtractFile reads a file from disk and extracts its text.
func (e *TextExtractor) ExtractFile(path, inputType string) string {
	if inputType == InputTypeText {
		content, err := os.ReadFile(path)
		if err != nil {
			e.logger.WithError(err).WithField("path", path).Error("Failed to read text file")
			return ""
		}
		return string(content)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		e.logger.WithError(err).WithField("path", path).Error("Failed to read source file")
		return ""
	}
	return e.Extract(content, inputType)
}

// Extract pulls text out of in-memory document content.
func (e *TextExtractor) Extract(content []byte, inputType string) string {
	switch inputType {
	case InputTypeText:
		return string(content)
	case InputTypePDF:
		return e.extractPDF(content)
	case InputTypeHTML:
		markdown, err := htmltomarkdown.ConvertString(string(content))
		if err != nil {
			e.logger.WithError(err).Error("Failed to convert HTML to text")
			return ""
		}
		return markdown
	default:
		e.logger.WithField("input_type", inputType).Warn("Unsupported input type")
		return ""
	}
}

// extractPDF concatenates the plain text of every page. Unreadable pages
// are skipped rather than failing the document.
func (e *TextExtractor) extractPDF(content []byte) string {
	reader := bytes.NewReader(content)

	r, err := pdf.NewReader(reader, int64(len(content)))
	if err != nil {
		e.logger.WithError(err).Error("Failed to open PDF")
		return ""
	}

	var textContent string
	totalPage := r.NumPage()

	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		p := r.Page(pageIndex)
		if p.V.IsNull() {
			continue
		}

		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		textContent += text
	}

	return textContent
}
