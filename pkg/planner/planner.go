// Package planner decides which chapters of a title still need
// downloading, and owns the expected-filename logic that makes on-disk
// existence checks match exporter output exactly.
package planner

import (
	"log/slog"
	"strings"

	"plusload/pkg/data"
	"plusload/pkg/utils"
)

// ChapterMetadata is the normalized per-chapter planning record, keyed by
// chapter ID to avoid collisions between chapters sharing a subtitle.
type ChapterMetadata struct {
	ThumbnailURL string
	ChapterID    int
	SubTitle     string
}

// ExtractChapterData flattens all chapter-list groups into one map keyed
// by chapter ID, sanitizing each subtitle with prepareFilename.
func ExtractChapterData(detail *data.TitleDetail, prepareFilename func(string) string) map[int]ChapterMetadata {
	chapterData := make(map[int]ChapterMetadata)
	for _, chapter := range detail.AllChapters() {
		chapterData[chapter.ChapterID] = ChapterMetadata{
			ThumbnailURL: chapter.ThumbnailURL,
			ChapterID:    chapter.ChapterID,
			SubTitle:     prepareFilename(chapter.SubTitle),
		}
	}
	return chapterData
}

// FindChapterByID searches all chapter groups for a chapter.
func FindChapterByID(detail *data.TitleDetail, chapterID int) (data.Chapter, bool) {
	for _, chapter := range detail.AllChapters() {
		if chapter.ChapterID == chapterID {
			return chapter, true
		}
	}
	return data.Chapter{}, false
}

// BuildExpectedFilename returns the filename stem an exporter would
// produce for a single-file output format. The three components pass
// through the same sanitizer used for on-disk names, so existence checks
// work without constructing the exporter.
func BuildExpectedFilename(titleName string, chapter data.Chapter, subTitle string) string {
	sanitizedTitle := utils.EscapePath(titleName)
	sanitizedChapterName := utils.EscapePath(strings.TrimSpace(strings.TrimLeft(chapter.Name, "#")))
	sanitizedSubTitle := utils.EscapePath(subTitle)
	return sanitizedTitle + " - " + sanitizedChapterName + " - " + sanitizedSubTitle
}

// FilterChaptersToDownload returns the requested chapter IDs whose
// expected output stem is not already on disk, in payload order. Requested
// IDs absent from the title dump are logged and skipped; upstream catalogs
// occasionally reference chapters removed server-side.
func FilterChaptersToDownload(
	chapterData map[int]ChapterMetadata,
	detail *data.TitleDetail,
	titleName string,
	existingStems []string,
	requestedIDs map[int]bool,
	logger *slog.Logger,
) []int {
	if logger == nil {
		logger = slog.Default()
	}
	existing := make(map[string]bool, len(existingStems))
	for _, stem := range existingStems {
		existing[stem] = true
	}

	var toDownload []int
	for _, chapter := range detail.AllChapters() {
		metadata, ok := chapterData[chapter.ChapterID]
		if !ok || !requestedIDs[chapter.ChapterID] {
			continue
		}
		expected := BuildExpectedFilename(titleName, chapter, metadata.SubTitle)
		if existing[expected] {
			continue
		}
		toDownload = append(toDownload, metadata.ChapterID)
	}

	for chapterID := range requestedIDs {
		if _, ok := chapterData[chapterID]; !ok {
			logger.Warn("chapter not found in title dump, skipping", "chapter_id", chapterID)
		}
	}
	return toDownload
}
