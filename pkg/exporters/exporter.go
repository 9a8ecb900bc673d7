// Package exporters writes chapter pages to one of several output
// containers: raw image files, CBZ archives, PDF documents, or EPUB books.
// All formats share the chapter/page naming scheme.
package exporters

import (
	"fmt"

	"plusload/pkg/data"
)

// PageIndex addresses one page slot, or two consecutive slots for a
// double-spread page. A spread occupying slots n and n+1 renders as
// "pnnn-nnn" in page filenames.
type PageIndex struct {
	Start  int
	Spread bool
}

// Single returns the index for a normal page.
func Single(i int) PageIndex {
	return PageIndex{Start: i}
}

// SpreadIndex returns the index for a double-spread page occupying slots
// i and i+1.
func SpreadIndex(i int) PageIndex {
	return PageIndex{Start: i, Spread: true}
}

func (p PageIndex) String() string {
	if p.Spread {
		return fmt.Sprintf("p%03d-%03d", p.Start, p.Start+1)
	}
	return fmt.Sprintf("p%03d", p.Start)
}

// Exporter receives a chapter's page images in order and persists them.
// SkipImage is consulted before page bytes are fetched; a true return
// means the page is already on disk and must not be downloaded again.
type Exporter interface {
	AddImage(imageData []byte, index PageIndex) error
	SkipImage(index PageIndex) bool
	Close() error
	// Discard drops buffered output without persisting it, so a failed
	// chapter never leaves a partial file at the final path. Pages a
	// format already wrote as standalone files stay on disk.
	Discard() error
	// Path returns the chapter's output location for manifest records.
	Path() string
}

// Options is the static exporter configuration shared by a run.
type Options struct {
	Destination      string
	AddChapterTitle  bool
	AddChapterSubdir bool
}

// Factory constructs an exporter bound to one chapter and its successor.
type Factory func(title data.Title, chapter data.Chapter, nextChapter *data.Chapter) (Exporter, error)

// NewFactory returns the factory for an output format.
func NewFactory(format data.OutputFormat, opts Options) (Factory, error) {
	switch format {
	case data.FormatRaw:
		return func(title data.Title, chapter data.Chapter, next *data.Chapter) (Exporter, error) {
			return NewRawExporter(opts, title, chapter, next)
		}, nil
	case data.FormatCBZ:
		return func(title data.Title, chapter data.Chapter, next *data.Chapter) (Exporter, error) {
			return NewCBZExporter(opts, title, chapter, next)
		}, nil
	case data.FormatPDF:
		return func(title data.Title, chapter data.Chapter, next *data.Chapter) (Exporter, error) {
			return NewPDFExporter(opts, title, chapter, next)
		}, nil
	case data.FormatEPUB:
		return func(title data.Title, chapter data.Chapter, next *data.Chapter) (Exporter, error) {
			return NewEPUBExporter(opts, title, chapter, next)
		}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// Extension returns the single-file extension for a format, or "" for
// formats that export a directory of images.
func Extension(format data.OutputFormat) string {
	switch format {
	case data.FormatCBZ, data.FormatPDF, data.FormatEPUB:
		return string(format)
	default:
		return ""
	}
}
