package exporters

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-shiori/go-epub"

	"plusload/pkg/data"
)

// EPUBExporter stages page images in a temp directory and assembles the
// chapter EPUB on Close.
type EPUBExporter struct {
	base
	path     string
	skipAll  bool
	stageDir string
	pages    []epubPage
}

type epubPage struct {
	sortKey  int
	filePath string
	label    string
}

func NewEPUBExporter(opts Options, title data.Title, chapter data.Chapter, next *data.Chapter) (*EPUBExporter, error) {
	e := &EPUBExporter{base: newBase(opts, title, chapter, next)}
	dir, err := e.titleDir()
	if err != nil {
		return nil, err
	}
	e.path = filepath.Join(dir, e.chapterName+".epub")
	if _, err := os.Stat(e.path); err == nil {
		e.skipAll = true
		return e, nil
	}
	stageDir, err := os.MkdirTemp(dir, ".epub-stage-*")
	if err != nil {
		return nil, fmt.Errorf("create epub staging dir: %w", err)
	}
	e.stageDir = stageDir
	return e, nil
}

func (e *EPUBExporter) AddImage(imageData []byte, index PageIndex) error {
	if e.skipAll {
		return nil
	}
	filePath := filepath.Join(e.stageDir, fmt.Sprintf("%08d.jpg", index.Start))
	if err := os.WriteFile(filePath, imageData, 0o644); err != nil {
		return fmt.Errorf("stage epub page: %w", err)
	}
	e.pages = append(e.pages, epubPage{sortKey: index.Start, filePath: filePath, label: index.String()})
	return nil
}

func (e *EPUBExporter) SkipImage(index PageIndex) bool {
	return e.skipAll
}

func (e *EPUBExporter) Close() error {
	if e.skipAll {
		return nil
	}
	defer os.RemoveAll(e.stageDir)
	if len(e.pages) == 0 {
		return nil
	}
	sort.Slice(e.pages, func(i, j int) bool { return e.pages[i].sortKey < e.pages[j].sortKey })

	book, err := epub.NewEpub(e.chapterName)
	if err != nil {
		return fmt.Errorf("create epub: %w", err)
	}
	book.SetAuthor(e.title.Author)

	var body strings.Builder
	body.WriteString("<h1>" + html.EscapeString(e.chapterName) + "</h1>\n")
	for _, page := range e.pages {
		internalPath, err := book.AddImage(page.filePath, "")
		if err != nil {
			return fmt.Errorf("add epub page: %w", err)
		}
		fmt.Fprintf(&body, `<div class="page"><img src="%s" alt="%s"/></div>`+"\n", internalPath, page.label)
	}
	if _, err := book.AddSection(body.String(), e.chapterName, "", ""); err != nil {
		return fmt.Errorf("add epub section: %w", err)
	}
	if err := book.Write(e.path); err != nil {
		return fmt.Errorf("write epub: %w", err)
	}
	return nil
}

// Discard removes the staging directory without assembling the book.
func (e *EPUBExporter) Discard() error {
	e.pages = nil
	if e.stageDir == "" {
		return nil
	}
	return os.RemoveAll(e.stageDir)
}

func (e *EPUBExporter) Path() string {
	return e.path
}
