// Package capture archives raw API payloads alongside redacted request
// metadata, for offline debugging and schema verification.
package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"plusload/pkg/api"
	"plusload/pkg/data"
)

const (
	rawSuffix      = ".pb"
	metaSuffix     = ".meta.json"
	responseSuffix = ".response.json"

	redactedPlaceholder = "***REDACTED***"
)

// sensitiveParams are query keys whose values never reach disk.
var sensitiveParams = map[string]bool{
	"secret":        true,
	"authorization": true,
	"auth":          true,
	"token":         true,
	"cookie":        true,
	"session":       true,
}

// Store records every captured payload under one directory. It satisfies
// api.Recorder. Capture failures are logged, never propagated: a broken
// capture directory must not abort a download run.
type Store struct {
	dir    string
	logger *slog.Logger
	seq    int
	clock  func() time.Time
}

type metaFile struct {
	CapturedAtUTC      string            `json:"captured_at_utc"`
	Endpoint           string            `json:"endpoint"`
	Identifier         string            `json:"identifier"`
	URL                string            `json:"url"`
	Params             map[string]string `json:"params"`
	PayloadSHA256      string            `json:"payload_sha256"`
	PayloadSizeBytes   int               `json:"payload_size_bytes"`
	RawPayloadFile     string            `json:"raw_payload_file"`
	ParsedPayloadError string            `json:"parsed_payload_error,omitempty"`
}

// NewStore creates the capture directory and returns a recorder writing
// into it.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create capture directory: %w", err)
	}
	return &Store{dir: dir, logger: logger, clock: time.Now}, nil
}

// Capture persists one payload: the raw bytes, a metadata sidecar with
// redacted request parameters, and a parsed summary when the payload
// decodes. File names are sequence-prefixed so disk order matches fetch
// order.
func (s *Store) Capture(endpoint, identifier, requestURL string, params url.Values, response []byte) {
	s.seq++
	stem := fmt.Sprintf("%04d_%s_%s", s.seq, endpoint, identifier)

	rawName := stem + rawSuffix
	if err := os.WriteFile(filepath.Join(s.dir, rawName), response, 0o644); err != nil {
		s.logger.Error("capture raw payload failed", "endpoint", endpoint, "identifier", identifier, "error", err)
		return
	}

	digest := sha256.Sum256(response)
	meta := metaFile{
		CapturedAtUTC:    s.clock().UTC().Format("2006-01-02T15:04:05Z"),
		Endpoint:         endpoint,
		Identifier:       identifier,
		URL:              requestURL,
		Params:           redactParams(params),
		PayloadSHA256:    hex.EncodeToString(digest[:]),
		PayloadSizeBytes: len(response),
		RawPayloadFile:   rawName,
	}

	parsed, parseErr := summarizePayload(endpoint, response)
	if parseErr != nil {
		meta.ParsedPayloadError = parseErr.Error()
	} else {
		serialized, err := json.MarshalIndent(parsed, "", "    ")
		if err == nil {
			err = os.WriteFile(filepath.Join(s.dir, stem+responseSuffix), serialized, 0o644)
		}
		if err != nil {
			s.logger.Error("capture parsed payload failed", "endpoint", endpoint, "identifier", identifier, "error", err)
		}
	}

	serialized, err := json.MarshalIndent(meta, "", "    ")
	if err == nil {
		err = os.WriteFile(filepath.Join(s.dir, stem+metaSuffix), serialized, 0o644)
	}
	if err != nil {
		s.logger.Error("capture metadata failed", "endpoint", endpoint, "identifier", identifier, "error", err)
	}
}

func redactParams(params url.Values) map[string]string {
	redacted := make(map[string]string, len(params))
	for key := range params {
		if sensitiveParams[key] {
			redacted[key] = redactedPlaceholder
			continue
		}
		redacted[key] = params.Get(key)
	}
	return redacted
}

type chapterSummary struct {
	TitleID   int    `json:"title_id"`
	ChapterID int    `json:"chapter_id"`
	Name      string `json:"name"`
	SubTitle  string `json:"sub_title"`
}

type viewerSummary struct {
	TitleID     int              `json:"title_id"`
	ChapterID   int              `json:"chapter_id"`
	TitleName   string           `json:"title_name"`
	ChapterName string           `json:"chapter_name"`
	PageCount   int              `json:"page_count"`
	ImageCount  int              `json:"image_count"`
	HasLastPage bool             `json:"has_last_page"`
	NextChapter *chapterSummary  `json:"next_chapter,omitempty"`
	Chapters    []chapterSummary `json:"chapters"`
}

type titleSummary struct {
	TitleID          int              `json:"title_id"`
	Name             string           `json:"name"`
	Author           string           `json:"author"`
	PortraitImageURL string           `json:"portrait_image_url"`
	Overview         string           `json:"overview"`
	NumberOfViews    int              `json:"number_of_views"`
	ChapterCount     int              `json:"chapter_count"`
	Chapters         []chapterSummary `json:"chapters"`
}

func summarizeChapter(chapter data.Chapter) chapterSummary {
	return chapterSummary{
		TitleID:   chapter.TitleID,
		ChapterID: chapter.ChapterID,
		Name:      chapter.Name,
		SubTitle:  chapter.SubTitle,
	}
}

// summarizePayload parses the raw payload per endpoint and produces the
// JSON view stored next to it.
func summarizePayload(endpoint string, response []byte) (any, error) {
	switch endpoint {
	case api.EndpointMangaViewer:
		viewer, err := api.ParseViewer(response)
		if err != nil {
			return nil, err
		}
		summary := viewerSummary{
			TitleID:     viewer.TitleID,
			ChapterID:   viewer.ChapterID,
			TitleName:   viewer.TitleName,
			ChapterName: viewer.ChapterName,
			PageCount:   len(viewer.Pages),
			ImageCount:  len(viewer.ImagePages()),
			HasLastPage: viewer.HasLastPage(),
			Chapters:    make([]chapterSummary, 0, len(viewer.Chapters)),
		}
		if viewer.HasLastPage() {
			if next := viewer.Pages[len(viewer.Pages)-1].LastPage.NextChapter; next != nil {
				nextSummary := summarizeChapter(*next)
				summary.NextChapter = &nextSummary
			}
		}
		for _, chapter := range viewer.Chapters {
			summary.Chapters = append(summary.Chapters, summarizeChapter(chapter))
		}
		return summary, nil
	case api.EndpointTitleDetail:
		detail, err := api.ParseTitleDetail(response)
		if err != nil {
			return nil, err
		}
		chapters := detail.AllChapters()
		summary := titleSummary{
			TitleID:          detail.Title.TitleID,
			Name:             detail.Title.Name,
			Author:           detail.Title.Author,
			PortraitImageURL: detail.Title.PortraitImageURL,
			Overview:         detail.Overview,
			NumberOfViews:    detail.NumberOfViews,
			ChapterCount:     len(chapters),
			Chapters:         make([]chapterSummary, 0, len(chapters)),
		}
		for _, chapter := range chapters {
			summary.Chapters = append(summary.Chapters, summarizeChapter(chapter))
		}
		return summary, nil
	default:
		return nil, fmt.Errorf("unknown capture endpoint %q", endpoint)
	}
}
