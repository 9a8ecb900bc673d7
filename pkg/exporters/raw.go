package exporters

import (
	"os"
	"path/filepath"

	"plusload/pkg/data"
)

// RawExporter writes each page as a standalone image file under the title
// directory, optionally inside a per-chapter subdirectory.
type RawExporter struct {
	base
	dir string
}

func NewRawExporter(opts Options, title data.Title, chapter data.Chapter, next *data.Chapter) (*RawExporter, error) {
	e := &RawExporter{base: newBase(opts, title, chapter, next)}
	dir, err := e.titleDir()
	if err != nil {
		return nil, err
	}
	if opts.AddChapterSubdir {
		dir = filepath.Join(dir, e.chapterName)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	e.dir = dir
	return e, nil
}

func (e *RawExporter) AddImage(imageData []byte, index PageIndex) error {
	return os.WriteFile(filepath.Join(e.dir, e.formatPageName(index, "jpg")), imageData, 0o644)
}

func (e *RawExporter) SkipImage(index PageIndex) bool {
	_, err := os.Stat(filepath.Join(e.dir, e.formatPageName(index, "jpg")))
	return err == nil
}

func (e *RawExporter) Close() error {
	return nil
}

// Discard keeps already-written pages; each is a complete file and the
// per-page skip check resumes around them.
func (e *RawExporter) Discard() error {
	return nil
}

func (e *RawExporter) Path() string {
	return e.dir
}
