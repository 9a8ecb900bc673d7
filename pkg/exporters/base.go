package exporters

import (
	"os"
	"path/filepath"

	"plusload/pkg/data"
	"plusload/pkg/utils"
)

// base derives the chapter naming parts shared by every format.
type base struct {
	opts        Options
	title       data.Title
	chapter     data.Chapter
	nextChapter *data.Chapter

	titleName     string
	chapterPrefix string
	chapterSuffix string
	chapterName   string
	isOneshot     bool
	isExtra       bool
}

func newBase(opts Options, title data.Title, chapter data.Chapter, next *data.Chapter) base {
	titleName := utils.TitleCase(utils.EscapePath(title.Name))
	prefix := titleName + title.Language.Tag() + " - " + utils.EscapePath(chapter.Name)

	subTitle := utils.EscapePath(chapter.SubTitle)
	if subTitle == "" {
		subTitle = "Unknown"
	}
	suffix := "- " + subTitle

	return base{
		opts:          opts,
		title:         title,
		chapter:       chapter,
		nextChapter:   next,
		titleName:     titleName,
		chapterPrefix: prefix,
		chapterSuffix: suffix,
		chapterName:   prefix + " " + suffix,
		isOneshot:     utils.IsOneshot(chapter.Name, chapter.SubTitle),
		isExtra:       utils.IsExtra(chapter.Name),
	}
}

// formatPageName returns the canonical page filename for one index.
func (b *base) formatPageName(index PageIndex, ext string) string {
	return b.chapterPrefix + " - " + index.String() + " " + b.chapterSuffix + "." + ext
}

// titleDir returns destination/<title>, creating it.
func (b *base) titleDir() (string, error) {
	dir := filepath.Join(b.opts.Destination, b.titleName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// atomicWriteFile replaces path with content via a temp file in the same
// directory, so readers never observe a partial chapter file.
func atomicWriteFile(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
