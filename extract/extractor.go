package extract

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/policyrag/core"
)

// MIME types with dedicated extractors.
const (
	MIMEPlainText = "text/plain"
	MIMEMarkdown  = "text/markdown"
	MIMEHTML      = "text/html"
	MIMEPDF       = "application/pdf"
	MIMEWord      = "application/msword"
	MIMEDocx      = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// TextExtractor extracts text from the raw bytes of one document format.
type TextExtractor interface {
	// Name identifies the extractor in logs.
	Name() string
	// Extract returns the document text. Errors wrap core.ErrExtraction.
	Extract(ctx context.Context, data []byte) (string, error)
}

// Registry maps MIME types to extractors.
type Registry struct {
	extractors map[string]TextExtractor
	fallback   TextExtractor // used for unregistered text/* types
}

// NewRegistry returns a registry with every built-in extractor registered.
func NewRegistry() *Registry {
	r := &Registry{
		extractors: make(map[string]TextExtractor),
		fallback:   PlainText{},
	}
	r.Register(MIMEPlainText, PlainText{})
	r.Register(MIMEMarkdown, PlainText{})
	r.Register(MIMEHTML, HTML{})
	r.Register(MIMEPDF, PDF{})
	r.Register(MIMEWord, Word{})
	r.Register(MIMEDocx, Docx{})
	return r
}

// Register associates an extractor with a MIME type, replacing any previous one.
func (r *Registry) Register(mimeType string, extractor TextExtractor) {
	r.extractors[normalizeMIME(mimeType)] = extractor
}

// Lookup returns the extractor for mimeType.
// Parameters such as charset are ignored. Unknown text/* types use PlainText.
func (r *Registry) Lookup(mimeType string) (TextExtractor, error) {
	mt := normalizeMIME(mimeType)
	if ex, ok := r.extractors[mt]; ok {
		return ex, nil
	}
	if r.fallback != nil && strings.HasPrefix(mt, "text/") {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: unsupported MIME type %q", core.ErrValidation, mimeType)
}

// Restrict returns a registry limited to the given MIME types, each resolved
// against r. The result has no text/* fallback.
func (r *Registry) Restrict(mimeTypes ...string) (*Registry, error) {
	restricted := &Registry{extractors: make(map[string]TextExtractor, len(mimeTypes))}
	for _, mt := range mimeTypes {
		ex, err := r.Lookup(mt)
		if err != nil {
			return nil, err
		}
		restricted.Register(mt, ex)
	}
	return restricted, nil
}

// Supports reports whether an extractor exists for mimeType.
func (r *Registry) Supports(mimeType string) bool {
	_, err := r.Lookup(mimeType)
	return err == nil
}

// Types returns the explicitly registered MIME types in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.extractors))
	for mt := range r.extractors {
		types = append(types, mt)
	}
	sort.Strings(types)
	return types
}

// Extract looks up the extractor for mimeType and runs it.
func (r *Registry) Extract(ctx context.Context, mimeType string, data []byte) (string, error) {
	ex, err := r.Lookup(mimeType)
	if err != nil {
		return "", err
	}
	return ex.Extract(ctx, data)
}

func normalizeMIME(mimeType string) string {
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// PlainText decodes bytes as UTF-8 text.
type PlainText struct{}

// Name implements TextExtractor.
func (PlainText) Name() string { return "plaintext" }

// Extract strips a byte order mark and replaces invalid UTF-8 sequences.
func (PlainText) Extract(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data), nil
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}

// PDF is a placeholder extractor that returns SamplePolicyText.
// It does not parse the PDF.
type PDF struct{}

// Name implements TextExtractor.
func (PDF) Name() string { return "pdf" }

// Extract implements TextExtractor.
func (PDF) Extract(ctx context.Context, data []byte) (string, error) {
	return placeholder(ctx, data)
}

// Word is a placeholder extractor for legacy .doc files.
// It returns SamplePolicyText.
type Word struct{}

// Name implements TextExtractor.
func (Word) Name() string { return "word" }

// Extract implements TextExtractor.
func (Word) Extract(ctx context.Context, data []byte) (string, error) {
	return placeholder(ctx, data)
}

func placeholder(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty document", core.ErrExtraction)
	}
	return SamplePolicyText, nil
}
