package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"plusload/pkg/data"
	"plusload/pkg/planner"
	"plusload/pkg/utils"
)

const metadataFilename = "title_metadata.json"

type chapterMetadataJSON struct {
	ThumbnailURL string `json:"thumbnail_url"`
	ChapterID    int    `json:"chapter_id"`
	SubTitle     string `json:"sub_title"`
}

type titleMetadataJSON struct {
	NonAppearanceInfo string                         `json:"non_appearance_info"`
	NumberOfViews     int                            `json:"number_of_views"`
	Overview          string                         `json:"overview"`
	Name              string                         `json:"name"`
	Author            string                         `json:"author"`
	PortraitImageURL  string                         `json:"portrait_image_url"`
	Chapters          map[string]chapterMetadataJSON `json:"chapters"`
}

// dumpTitleMetadata writes the title-level metadata JSON side effect into
// the export directory.
func dumpTitleMetadata(detail *data.TitleDetail, chapterData map[int]planner.ChapterMetadata, exportDir string) error {
	chapterIDs := make([]int, 0, len(chapterData))
	for chapterID := range chapterData {
		chapterIDs = append(chapterIDs, chapterID)
	}
	sort.Ints(chapterIDs)

	chapters := make(map[string]chapterMetadataJSON, len(chapterIDs))
	for _, chapterID := range chapterIDs {
		metadata := chapterData[chapterID]
		chapters[strconv.Itoa(chapterID)] = chapterMetadataJSON{
			ThumbnailURL: metadata.ThumbnailURL,
			ChapterID:    metadata.ChapterID,
			SubTitle:     utils.TitleCase(utils.EscapePath(metadata.SubTitle)),
		}
	}

	payload := titleMetadataJSON{
		NonAppearanceInfo: detail.NonAppearanceInfo,
		NumberOfViews:     detail.NumberOfViews,
		Overview:          detail.Overview,
		Name:              detail.Title.Name,
		Author:            detail.Title.Author,
		PortraitImageURL:  detail.Title.PortraitImageURL,
		Chapters:          chapters,
	}

	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	serialized, err := json.MarshalIndent(payload, "", "    ")
	if err != nil {
		return fmt.Errorf("encode title metadata: %w", err)
	}
	return os.WriteFile(filepath.Join(exportDir, metadataFilename), serialized, 0o644)
}
