package exporters

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"plusload/pkg/data"
	"plusload/pkg/utils"
)

var languageISO = map[data.Language]string{
	data.LanguageEnglish:    "en",
	data.LanguageSpanish:    "es",
	data.LanguageFrench:     "fr",
	data.LanguageIndonesian: "id",
	data.LanguagePortuguese: "pt",
	data.LanguageRussian:    "ru",
	data.LanguageThai:       "th",
	data.LanguageGerman:     "de",
}

type comicInfo struct {
	XMLName     xml.Name `xml:"ComicInfo"`
	Series      string   `xml:"Series"`
	Number      string   `xml:"Number"`
	Title       string   `xml:"Title"`
	Writer      string   `xml:"Writer"`
	LanguageISO string   `xml:"LanguageISO"`
	Manga       string   `xml:"Manga"`
	Publisher   string   `xml:"Publisher"`
	Genre       string   `xml:"Genre"`
}

// CBZExporter assembles pages into an in-memory zip and writes the .cbz
// atomically on Close. An existing archive short-circuits every write.
type CBZExporter struct {
	base
	path     string
	skipAll  bool
	buffer   *bytes.Buffer
	archive  *zip.Writer
	anyPages bool
}

func NewCBZExporter(opts Options, title data.Title, chapter data.Chapter, next *data.Chapter) (*CBZExporter, error) {
	e := &CBZExporter{base: newBase(opts, title, chapter, next)}
	dir, err := e.titleDir()
	if err != nil {
		return nil, err
	}
	e.path = filepath.Join(dir, e.chapterName+".cbz")

	if _, err := os.Stat(e.path); err == nil {
		e.skipAll = true
		return e, nil
	}
	e.buffer = &bytes.Buffer{}
	e.archive = zip.NewWriter(e.buffer)
	return e, nil
}

func (e *CBZExporter) AddImage(imageData []byte, index PageIndex) error {
	if e.skipAll {
		return nil
	}
	entry := path.Join(e.chapterName, e.formatPageName(index, "jpg"))
	w, err := e.archive.Create(entry)
	if err != nil {
		return fmt.Errorf("create archive entry: %w", err)
	}
	if _, err := w.Write(imageData); err != nil {
		return fmt.Errorf("write archive entry: %w", err)
	}
	e.anyPages = true
	return nil
}

func (e *CBZExporter) SkipImage(index PageIndex) bool {
	return e.skipAll
}

func (e *CBZExporter) comicInfoXML() ([]byte, error) {
	number := e.chapter.Name
	if n, ok := utils.ChapterNameToInt(e.chapter.Name); ok {
		number = fmt.Sprintf("%d", n)
	}
	iso, ok := languageISO[e.title.Language]
	if !ok {
		iso = "en"
	}
	info := comicInfo{
		Series:      e.titleName,
		Number:      number,
		Title:       e.chapter.SubTitle,
		Writer:      e.title.Author,
		LanguageISO: iso,
		Manga:       "YesAndRightToLeft",
		Publisher:   "Shueisha",
		Genre:       "Manga",
	}
	encoded, err := xml.MarshalIndent(info, "", "    ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), encoded...), nil
}

func (e *CBZExporter) Close() error {
	if e.skipAll || e.archive == nil {
		return nil
	}
	if !e.anyPages {
		// Nothing but metadata would go into the archive.
		return nil
	}
	infoXML, err := e.comicInfoXML()
	if err != nil {
		return fmt.Errorf("build ComicInfo.xml: %w", err)
	}
	w, err := e.archive.Create(path.Join(e.chapterName, "ComicInfo.xml"))
	if err != nil {
		return fmt.Errorf("create ComicInfo.xml entry: %w", err)
	}
	if _, err := w.Write(infoXML); err != nil {
		return fmt.Errorf("write ComicInfo.xml entry: %w", err)
	}
	if err := e.archive.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return atomicWriteFile(e.path, e.buffer.Bytes())
}

// Discard drops the in-memory archive so nothing reaches e.path.
func (e *CBZExporter) Discard() error {
	e.buffer = nil
	e.archive = nil
	return nil
}

func (e *CBZExporter) Path() string {
	return e.path
}
