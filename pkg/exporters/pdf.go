package exporters

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-pdf/fpdf"
	"golang.org/x/image/webp"

	"plusload/pkg/data"

	_ "image/png"
)

// PDFExporter buffers page images in memory and assembles the chapter PDF
// on Close, one page per image at the image's pixel dimensions.
type PDFExporter struct {
	base
	path    string
	skipAll bool
	pages   []pdfPage
}

type pdfPage struct {
	sortKey int
	blob    []byte
}

func NewPDFExporter(opts Options, title data.Title, chapter data.Chapter, next *data.Chapter) (*PDFExporter, error) {
	e := &PDFExporter{base: newBase(opts, title, chapter, next)}
	dir, err := e.titleDir()
	if err != nil {
		return nil, err
	}
	e.path = filepath.Join(dir, e.chapterName+".pdf")
	if _, err := os.Stat(e.path); err == nil {
		e.skipAll = true
	}
	return e, nil
}

func (e *PDFExporter) AddImage(imageData []byte, index PageIndex) error {
	if e.skipAll {
		return nil
	}
	blob := make([]byte, len(imageData))
	copy(blob, imageData)
	e.pages = append(e.pages, pdfPage{sortKey: index.Start, blob: blob})
	return nil
}

func (e *PDFExporter) SkipImage(index PageIndex) bool {
	return e.skipAll
}

// normalizePage returns the image bytes in a format fpdf accepts plus the
// matching image type tag. Webp pages are transcoded to JPEG.
func normalizePage(blob []byte) ([]byte, string, int, int, error) {
	config, format, err := image.DecodeConfig(bytes.NewReader(blob))
	if err != nil {
		return nil, "", 0, 0, fmt.Errorf("decode page image: %w", err)
	}
	switch format {
	case "jpeg":
		return blob, "JPG", config.Width, config.Height, nil
	case "png":
		return blob, "PNG", config.Width, config.Height, nil
	case "webp":
		decoded, err := webp.Decode(bytes.NewReader(blob))
		if err != nil {
			return nil, "", 0, 0, fmt.Errorf("decode webp page: %w", err)
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, decoded, &jpeg.Options{Quality: 90}); err != nil {
			return nil, "", 0, 0, fmt.Errorf("transcode webp page: %w", err)
		}
		return buf.Bytes(), "JPG", config.Width, config.Height, nil
	default:
		return nil, "", 0, 0, fmt.Errorf("unsupported page image format %q", format)
	}
}

func (e *PDFExporter) Close() error {
	if e.skipAll || len(e.pages) == 0 {
		return nil
	}
	sort.Slice(e.pages, func(i, j int) bool { return e.pages[i].sortKey < e.pages[j].sortKey })

	pdf := fpdf.NewCustom(&fpdf.InitType{UnitStr: "pt"})
	pdf.SetTitle(e.chapterName, true)
	pdf.SetCreator("plusload", true)
	pdf.SetAutoPageBreak(false, 0)
	for i, page := range e.pages {
		blob, imageType, width, height, err := normalizePage(page.blob)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("page-%04d", i)
		opt := fpdf.ImageOptions{ImageType: imageType}
		pdf.RegisterImageOptionsReader(name, opt, bytes.NewReader(blob))
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: float64(width), Ht: float64(height)})
		pdf.ImageOptions(name, 0, 0, float64(width), float64(height), false, opt, 0, "")
	}
	if pdf.Err() {
		return fmt.Errorf("assemble pdf: %s", pdf.Error())
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return atomicWriteFile(e.path, buf.Bytes())
}

// Discard drops the buffered pages so nothing reaches e.path.
func (e *PDFExporter) Discard() error {
	e.pages = nil
	return nil
}

func (e *PDFExporter) Path() string {
	return e.path
}
