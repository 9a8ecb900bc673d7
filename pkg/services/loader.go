// Package services holds the download orchestration: target
// normalization, the per-title/per-chapter state machine, the page export
// pipeline, and run-level reporting.
package services

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"plusload/pkg/data"
	"plusload/pkg/exporters"
	"plusload/pkg/manifest"
	"plusload/pkg/planner"
	"plusload/pkg/utils"
)

// Catalog is the API surface the loader needs. *api.Client satisfies it.
type Catalog interface {
	FetchViewer(ctx context.Context, chapterID int) (*data.Viewer, error)
	FetchTitleDetail(ctx context.Context, titleID int) (*data.TitleDetail, error)
	DownloadImage(ctx context.Context, imageURL string) ([]byte, error)
	ClearRunCaches()
	ClearTitleCaches(titleID int, chapterIDs []int)
}

// Loader is the top-level download orchestrator. It owns its collaborators
// explicitly: the cached API client, the exporter factory, and the
// manifest instances it opens per title.
type Loader struct {
	client       Catalog
	newExporter  exporters.Factory
	logger       *slog.Logger
	showProgress bool
	manifestOpts []manifest.Option
}

// LoaderOption configures optional loader behavior.
type LoaderOption func(*Loader)

// WithProgress toggles per-chapter progress bars.
func WithProgress(show bool) LoaderOption {
	return func(l *Loader) { l.showProgress = show }
}

// WithManifestOptions forwards options to every manifest the loader opens.
func WithManifestOptions(opts ...manifest.Option) LoaderOption {
	return func(l *Loader) { l.manifestOpts = opts }
}

// NewLoader builds a loader around a client and an exporter factory.
func NewLoader(client Catalog, factory exporters.Factory, logger *slog.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{
		client:      client,
		newExporter: factory,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Download executes one run. Titles process sequentially; a chapter
// failure is recorded and never aborts the title or the run. Cancellation
// through ctx surfaces as *InterruptedError carrying the partial summary,
// after the per-title flush and cache clears have run.
func (l *Loader) Download(ctx context.Context, req data.DownloadRequest) (data.DownloadSummary, error) {
	report := &data.RunReport{}

	l.client.ClearRunCaches()
	defer l.client.ClearRunCaches()

	mapping, err := l.normalize(ctx, req)
	if err != nil {
		return report.Summary(), l.wrapRunError(err, report)
	}

	titleIDs := make([]int, 0, len(mapping))
	for titleID := range mapping {
		titleIDs = append(titleIDs, titleID)
	}
	sort.Ints(titleIDs)

	for i, titleID := range titleIDs {
		if err := l.processTitle(ctx, i+1, len(titleIDs), titleID, mapping[titleID], req, report); err != nil {
			return report.Summary(), l.wrapRunError(err, report)
		}
	}
	return report.Summary(), nil
}

// wrapRunError converts context cancellation into the typed interrupted
// error carrying partial progress.
func (l *Loader) wrapRunError(err error, report *data.RunReport) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &InterruptedError{Summary: report.Summary(), Cause: err}
	}
	return err
}

func (l *Loader) prepareFilename(text string) string {
	return utils.EscapePath(utils.FixEncoding(text))
}

// existingFiles lists the chapter output stems already present for
// single-file formats. Raw mode checks per page instead.
func (l *Loader) existingFiles(exportDir string, format data.OutputFormat) []string {
	extension := exporters.Extension(format)
	if extension == "" {
		return nil
	}
	entries, err := os.ReadDir(exportDir)
	if err != nil {
		return nil
	}
	var stems []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, "."+extension) {
			stems = append(stems, strings.TrimSuffix(name, "."+extension))
		}
	}
	l.logger.Info("found existing chapter files", "dir", exportDir, "count", len(stems))
	return stems
}

func (l *Loader) processTitle(
	ctx context.Context,
	titleIndex, totalTitles, titleID int,
	chapterIDs []int,
	req data.DownloadRequest,
	report *data.RunReport,
) (err error) {
	var man *manifest.Manifest
	defer func() {
		if man != nil {
			if flushErr := man.Flush(); flushErr != nil {
				l.logger.Error("manifest flush failed", "title_id", titleID, "error", flushErr)
				if err == nil {
					err = flushErr
				}
			}
		}
		l.client.ClearTitleCaches(titleID, chapterIDs)
	}()

	detail, err := l.client.FetchTitleDetail(ctx, titleID)
	if err != nil {
		return err
	}
	title := detail.Title

	l.logger.Info("processing title",
		"index", titleIndex, "total", totalTitles,
		"title", title.Name, "author", title.Author)

	exportDir := filepath.Join(req.OutDir, utils.TitleCase(utils.EscapePath(title.Name)))
	if req.Resume || req.ManifestReset {
		manifestOpts := append([]manifest.Option{manifest.WithAutosave(false)}, l.manifestOpts...)
		man, err = manifest.Open(exportDir, manifestOpts...)
		if err != nil {
			return err
		}
		if req.ManifestReset {
			if err := man.Reset(); err != nil {
				return err
			}
		}
	}

	chapterData := planner.ExtractChapterData(detail, l.prepareFilename)

	if req.Meta {
		if err := dumpTitleMetadata(detail, chapterData, exportDir); err != nil {
			l.logger.Error("title metadata dump failed", "title", title.Name, "error", err)
		} else {
			l.logger.Info("title metadata exported", "title", title.Name)
		}
	}

	requested := make(map[int]bool, len(chapterIDs))
	for _, chapterID := range chapterIDs {
		requested[chapterID] = true
	}
	existing := l.existingFiles(exportDir, req.Format)
	titleName := utils.TitleCase(utils.EscapePath(title.Name))
	toDownload := planner.FilterChaptersToDownload(chapterData, detail, titleName, existing, requested, l.logger)

	if req.Resume && man != nil {
		var pending []int
		for _, chapterID := range toDownload {
			if man.IsCompleted(chapterID) {
				continue
			}
			pending = append(pending, chapterID)
		}
		if skipped := len(toDownload) - len(pending); skipped > 0 {
			l.logger.Info("skipping chapters already completed in manifest", "count", skipped)
			report.MarkManifestSkipped(skipped)
		}
		toDownload = pending
	}

	if len(toDownload) == 0 {
		l.logger.Info("all chapters already downloaded", "title", title.Name)
		return nil
	}

	sort.Ints(toDownload)
	l.logger.Info("chapters to download", "title", title.Name, "count", len(toDownload))

	resumeManifest := man
	if !req.Resume {
		resumeManifest = nil
	}
	for i, chapterID := range toDownload {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := l.processChapter(ctx, title, i+1, len(toDownload), chapterID, resumeManifest, req)
		if err == nil {
			report.MarkDownloaded()
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if resumeManifest != nil {
			if markErr := resumeManifest.MarkFailed(chapterID, err.Error()); markErr != nil {
				l.logger.Error("manifest mark failed", "chapter_id", chapterID, "error", markErr)
			}
			if flushErr := resumeManifest.Flush(); flushErr != nil {
				l.logger.Error("manifest flush failed", "chapter_id", chapterID, "error", flushErr)
			}
		}
		report.MarkFailed(chapterID)
		l.logger.Error("chapter failed", "chapter_id", chapterID, "error", err)
	}
	return nil
}

func (l *Loader) processChapter(
	ctx context.Context,
	title data.Title,
	chapterIndex, totalChapters, chapterID int,
	man *manifest.Manifest,
	req data.DownloadRequest,
) error {
	viewer, err := l.client.FetchViewer(ctx, chapterID)
	if err != nil {
		return err
	}
	if !viewer.HasLastPage() {
		return ErrSubscriptionRequired
	}

	lastPage := viewer.Pages[len(viewer.Pages)-1].LastPage
	currentChapter := lastPage.CurrentChapter
	currentChapter.SubTitle = l.prepareFilename(currentChapter.SubTitle)
	nextChapter := lastPage.NextChapter

	l.logger.Info("downloading chapter",
		"index", chapterIndex, "total", totalChapters,
		"chapter", viewer.ChapterName, "sub_title", currentChapter.SubTitle)

	if man != nil {
		if err := man.MarkStarted(chapterID, viewer.ChapterName, currentChapter.SubTitle, string(req.Format)); err != nil {
			return err
		}
	}

	exporter, err := l.newExporter(title, currentChapter, nextChapter)
	if err != nil {
		return err
	}
	if err := ExportPages(ctx, viewer.ImagePages(), viewer.ChapterName, exporter, l.fetchPageImage, l.showProgress); err != nil {
		// Never finalize a failed chapter: a partial archive at the final
		// path would be mistaken for a finished one on the next run.
		if discardErr := exporter.Discard(); discardErr != nil {
			l.logger.Error("discard chapter output failed", "chapter_id", chapterID, "error", discardErr)
		}
		return err
	}
	if err := exporter.Close(); err != nil {
		return err
	}

	if man != nil {
		if err := man.MarkCompleted(chapterID, exporter.Path()); err != nil {
			return err
		}
	}
	return nil
}
