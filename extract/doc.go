// Package extract turns uploaded bytes into plain text.
//
// Each supported format is a TextExtractor. A Registry selects the extractor
// for an upload's MIME type:
//
//	reg := extract.NewRegistry()
//	ex, err := reg.Lookup("text/plain")
//	text, err := ex.Extract(ctx, data)
//
// PDF and legacy Word uploads are not parsed; their extractors return a fixed
// sample policy text. DOCX and HTML are parsed.
package extract
