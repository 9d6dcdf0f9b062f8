package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/poiesic/policyrag/core"
)

const docxBodyPart = "word/document.xml"

// maxDocumentXMLSize caps the decompressed size of word/document.xml.
var maxDocumentXMLSize int64 = 64 << 20

// Docx extracts paragraph text from Office Open XML documents.
type Docx struct{}

// Name implements TextExtractor.
func (Docx) Name() string { return "docx" }

// Extract reads word/document.xml and joins its paragraphs with newlines.
func (Docx) Extract(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: not a docx archive: %w", core.ErrExtraction, err)
	}

	for _, file := range reader.File {
		if file.Name != docxBodyPart {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("%w: %w", core.ErrExtraction, err)
		}
		content, err := io.ReadAll(io.LimitReader(rc, maxDocumentXMLSize+1))
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("%w: %w", core.ErrExtraction, err)
		}
		if int64(len(content)) > maxDocumentXMLSize {
			return "", fmt.Errorf("%w: %s exceeds %d bytes", core.ErrExtraction, docxBodyPart, maxDocumentXMLSize)
		}
		return parseDocumentXML(content)
	}
	return "", fmt.Errorf("%w: %s missing from archive", core.ErrExtraction, docxBodyPart)
}

// documentXML mirrors the parts of word/document.xml that carry text.
type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

func parseDocumentXML(content []byte) (string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", fmt.Errorf("%w: malformed document.xml: %w", core.ErrExtraction, err)
	}

	var sb strings.Builder
	for i, para := range doc.Body.Paragraphs {
		if i > 0 {
			sb.WriteString("\n")
		}
		for _, r := range para.Runs {
			for _, t := range r.Text {
				sb.WriteString(t.Content)
			}
		}
	}
	return sb.String(), nil
}
