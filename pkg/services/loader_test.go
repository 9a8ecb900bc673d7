package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plusload/pkg/data"
	"plusload/pkg/exporters"
	"plusload/pkg/manifest"
)

type mockCatalog struct {
	fetchViewerFunc      func(ctx context.Context, chapterID int) (*data.Viewer, error)
	fetchTitleDetailFunc func(ctx context.Context, titleID int) (*data.TitleDetail, error)
	downloadImageFunc    func(ctx context.Context, imageURL string) ([]byte, error)

	runClears   int
	titleClears []int
}

func (m *mockCatalog) FetchViewer(ctx context.Context, chapterID int) (*data.Viewer, error) {
	if m.fetchViewerFunc != nil {
		return m.fetchViewerFunc(ctx, chapterID)
	}
	return nil, errors.New("no viewer stub")
}

func (m *mockCatalog) FetchTitleDetail(ctx context.Context, titleID int) (*data.TitleDetail, error) {
	if m.fetchTitleDetailFunc != nil {
		return m.fetchTitleDetailFunc(ctx, titleID)
	}
	return nil, errors.New("no title stub")
}

func (m *mockCatalog) DownloadImage(ctx context.Context, imageURL string) ([]byte, error) {
	if m.downloadImageFunc != nil {
		return m.downloadImageFunc(ctx, imageURL)
	}
	return []byte("image"), nil
}

func (m *mockCatalog) ClearRunCaches() {
	m.runClears++
}

func (m *mockCatalog) ClearTitleCaches(titleID int, chapterIDs []int) {
	m.titleClears = append(m.titleClears, titleID)
}

const testTitleID = 100312

func testTitle() data.Title {
	return data.Title{TitleID: testTitleID, Name: "Test Title", Author: "Author Name"}
}

func detailWithChapters(chapters ...data.Chapter) *data.TitleDetail {
	return &data.TitleDetail{
		Title:             testTitle(),
		ChapterListGroups: []data.ChapterGroup{{FirstChapterList: chapters}},
	}
}

func testChapter(chapterID int, number int) data.Chapter {
	return data.Chapter{
		TitleID:   testTitleID,
		ChapterID: chapterID,
		Name:      fmt.Sprintf("#%03d", number),
		SubTitle:  fmt.Sprintf("Subtitle %d", number),
	}
}

func viewerFor(chapter data.Chapter) *data.Viewer {
	return &data.Viewer{
		TitleID:     chapter.TitleID,
		ChapterID:   chapter.ChapterID,
		TitleName:   "Test Title",
		ChapterName: chapter.Name,
		Pages: []data.Page{
			{MangaPage: &data.MangaPage{ImageURL: "https://cdn.example/p0.jpg"}},
			{MangaPage: &data.MangaPage{ImageURL: "https://cdn.example/p1.jpg"}},
			{LastPage: &data.LastPage{CurrentChapter: chapter}},
		},
	}
}

// catalogFor stubs a three-chapter title with working viewers.
func catalogFor(chapters []data.Chapter) *mockCatalog {
	byID := make(map[int]data.Chapter, len(chapters))
	for _, chapter := range chapters {
		byID[chapter.ChapterID] = chapter
	}
	return &mockCatalog{
		fetchTitleDetailFunc: func(ctx context.Context, titleID int) (*data.TitleDetail, error) {
			return detailWithChapters(chapters...), nil
		},
		fetchViewerFunc: func(ctx context.Context, chapterID int) (*data.Viewer, error) {
			chapter, ok := byID[chapterID]
			if !ok {
				return nil, fmt.Errorf("unknown chapter %d", chapterID)
			}
			return viewerFor(chapter), nil
		},
	}
}

func rawLoader(t *testing.T, catalog Catalog, outDir string) *Loader {
	t.Helper()
	factory, err := exporters.NewFactory(data.FormatRaw, exporters.Options{Destination: outDir})
	require.NoError(t, err)
	return NewLoader(catalog, factory, nil)
}

func TestDownload_FullTitle(t *testing.T) {
	chapters := []data.Chapter{testChapter(1001, 1), testChapter(1002, 2), testChapter(1003, 3)}
	catalog := catalogFor(chapters)
	outDir := t.TempDir()
	loader := rawLoader(t, catalog, outDir)

	summary, err := loader.Download(context.Background(), data.DownloadRequest{
		OutDir: outDir,
		Format: data.FormatRaw,
		Titles: []int{testTitleID},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Downloaded)
	assert.Equal(t, 0, summary.Failed)

	// Two pages per chapter landed in the title directory.
	entries, err := os.ReadDir(filepath.Join(outDir, "Test Title"))
	require.NoError(t, err)
	assert.Len(t, entries, 6)

	// Caches cleared at run start, run end, and per title.
	assert.Equal(t, 2, catalog.runClears)
	assert.Equal(t, []int{testTitleID}, catalog.titleClears)
}

func TestDownload_PartialFailureIsolated(t *testing.T) {
	chapters := []data.Chapter{testChapter(1001, 1), testChapter(1002, 2), testChapter(1003, 3)}
	catalog := catalogFor(chapters)
	inner := catalog.fetchViewerFunc
	catalog.fetchViewerFunc = func(ctx context.Context, chapterID int) (*data.Viewer, error) {
		if chapterID == 1002 {
			return nil, errors.New("upstream hiccup")
		}
		return inner(ctx, chapterID)
	}

	outDir := t.TempDir()
	loader := rawLoader(t, catalog, outDir)

	summary, err := loader.Download(context.Background(), data.DownloadRequest{
		OutDir: outDir,
		Format: data.FormatRaw,
		Titles: []int{testTitleID},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Downloaded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []int{1002}, summary.FailedChapterIDs)
	assert.True(t, summary.HasFailures())
}

func cbzLoader(t *testing.T, catalog Catalog, outDir string) *Loader {
	t.Helper()
	factory, err := exporters.NewFactory(data.FormatCBZ, exporters.Options{Destination: outDir})
	require.NoError(t, err)
	return NewLoader(catalog, factory, nil)
}

func TestDownload_FailedChapterLeavesNoArchive(t *testing.T) {
	chapters := []data.Chapter{testChapter(1001, 1)}
	outDir := t.TempDir()
	req := data.DownloadRequest{
		OutDir: outDir,
		Format: data.FormatCBZ,
		Titles: []int{testTitleID},
	}

	// Second page fails mid-chapter.
	catalog := catalogFor(chapters)
	catalog.downloadImageFunc = func(ctx context.Context, imageURL string) ([]byte, error) {
		if strings.HasSuffix(imageURL, "p1.jpg") {
			return nil, errors.New("image fetch failed")
		}
		return []byte("image"), nil
	}
	loader := cbzLoader(t, catalog, outDir)
	summary, err := loader.Download(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	archives, err := filepath.Glob(filepath.Join(outDir, "Test Title", "*.cbz"))
	require.NoError(t, err)
	assert.Empty(t, archives, "failed chapter must not leave a partial archive")

	// The fetch recovers; the chapter is redownloaded in full.
	loader = cbzLoader(t, catalogFor(chapters), outDir)
	summary, err = loader.Download(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Downloaded)
	assert.Equal(t, 0, summary.Failed)

	archives, err = filepath.Glob(filepath.Join(outDir, "Test Title", "*.cbz"))
	require.NoError(t, err)
	assert.Len(t, archives, 1)
}

func TestDownload_SubscriptionChapterFails(t *testing.T) {
	chapter := testChapter(1001, 1)
	catalog := catalogFor([]data.Chapter{chapter})
	catalog.fetchViewerFunc = func(ctx context.Context, chapterID int) (*data.Viewer, error) {
		// No terminal last page: paywalled chapter.
		v := viewerFor(chapter)
		v.Pages = v.Pages[:len(v.Pages)-1]
		return v, nil
	}

	outDir := t.TempDir()
	loader := rawLoader(t, catalog, outDir)

	summary, err := loader.Download(context.Background(), data.DownloadRequest{
		OutDir: outDir,
		Format: data.FormatRaw,
		Titles: []int{testTitleID},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Downloaded)
	assert.Equal(t, []int{1001}, summary.FailedChapterIDs)
}

func TestDownload_ResumeSkipsCompleted(t *testing.T) {
	chapters := []data.Chapter{testChapter(1001, 1), testChapter(1002, 2), testChapter(1003, 3)}
	outDir := t.TempDir()
	req := data.DownloadRequest{
		OutDir: outDir,
		Format: data.FormatRaw,
		Titles: []int{testTitleID},
		Resume: true,
	}

	loader := rawLoader(t, catalogFor(chapters), outDir)
	summary, err := loader.Download(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Downloaded)

	// Second run: every chapter is recorded as completed and skipped
	// without touching the network.
	fetches := 0
	catalog := catalogFor(chapters)
	inner := catalog.fetchViewerFunc
	catalog.fetchViewerFunc = func(ctx context.Context, chapterID int) (*data.Viewer, error) {
		fetches++
		return inner(ctx, chapterID)
	}
	loader = rawLoader(t, catalog, outDir)
	summary, err = loader.Download(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Downloaded)
	assert.Equal(t, 3, summary.SkippedManifest)
	assert.Equal(t, 0, fetches)
}

func TestDownload_ResumeRetriesFailed(t *testing.T) {
	chapters := []data.Chapter{testChapter(1001, 1), testChapter(1002, 2)}
	outDir := t.TempDir()
	req := data.DownloadRequest{
		OutDir: outDir,
		Format: data.FormatRaw,
		Titles: []int{testTitleID},
		Resume: true,
	}

	catalog := catalogFor(chapters)
	inner := catalog.fetchViewerFunc
	catalog.fetchViewerFunc = func(ctx context.Context, chapterID int) (*data.Viewer, error) {
		if chapterID == 1002 {
			return nil, errors.New("flaky")
		}
		return inner(ctx, chapterID)
	}
	loader := rawLoader(t, catalog, outDir)
	summary, err := loader.Download(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Downloaded)
	assert.Equal(t, 1, summary.Failed)

	man, err := manifest.Open(filepath.Join(outDir, "Test Title"), manifest.WithAutosave(false))
	require.NoError(t, err)
	entry, ok := man.Entry(1002)
	require.True(t, ok)
	assert.Equal(t, manifest.StatusFailed, entry.Status)

	// The flake clears; only the failed chapter is redone.
	loader = rawLoader(t, catalogFor(chapters), outDir)
	summary, err = loader.Download(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Downloaded)
	assert.Equal(t, 1, summary.SkippedManifest)
	assert.Equal(t, 0, summary.Failed)
}

func TestDownload_ManifestResetRedownloads(t *testing.T) {
	chapters := []data.Chapter{testChapter(1001, 1)}
	outDir := t.TempDir()
	req := data.DownloadRequest{
		OutDir: outDir,
		Format: data.FormatRaw,
		Titles: []int{testTitleID},
		Resume: true,
	}

	loader := rawLoader(t, catalogFor(chapters), outDir)
	_, err := loader.Download(context.Background(), req)
	require.NoError(t, err)

	req.ManifestReset = true
	loader = rawLoader(t, catalogFor(chapters), outDir)
	summary, err := loader.Download(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Downloaded)
	assert.Equal(t, 0, summary.SkippedManifest)
}

func TestDownload_InterruptCarriesPartialSummary(t *testing.T) {
	chapters := []data.Chapter{testChapter(1001, 1), testChapter(1002, 2), testChapter(1003, 3)}
	ctx, cancel := context.WithCancel(context.Background())

	catalog := catalogFor(chapters)
	inner := catalog.fetchViewerFunc
	fetched := 0
	catalog.fetchViewerFunc = func(ctx context.Context, chapterID int) (*data.Viewer, error) {
		fetched++
		if fetched == 2 {
			cancel()
			return nil, ctx.Err()
		}
		return inner(ctx, chapterID)
	}

	outDir := t.TempDir()
	loader := rawLoader(t, catalog, outDir)

	summary, err := loader.Download(ctx, data.DownloadRequest{
		OutDir: outDir,
		Format: data.FormatRaw,
		Titles: []int{testTitleID},
	})

	var interrupted *InterruptedError
	require.ErrorAs(t, err, &interrupted)
	assert.Equal(t, 1, interrupted.Summary.Downloaded)
	assert.Equal(t, summary, interrupted.Summary)
	// Caches still cleared on the way out.
	assert.Equal(t, 2, catalog.runClears)
	assert.Equal(t, []int{testTitleID}, catalog.titleClears)
}

func TestNormalize_NoTargets(t *testing.T) {
	loader := NewLoader(&mockCatalog{}, nil, nil)

	_, err := loader.normalize(context.Background(), data.DownloadRequest{})
	assert.ErrorIs(t, err, ErrNoTargets)

	// Chapter numbers alone have no title context and are a usage error.
	_, err = loader.normalize(context.Background(), data.DownloadRequest{Chapters: []int{3}})
	assert.ErrorIs(t, err, ErrNoTargets)
}

func TestNormalize_ChapterIDResolvesOwningTitle(t *testing.T) {
	chapters := []data.Chapter{testChapter(1001, 1), testChapter(1002, 2)}
	loader := NewLoader(catalogFor(chapters), nil, nil)

	mapping, err := loader.normalize(context.Background(), data.DownloadRequest{ChapterIDs: []int{1002}})
	require.NoError(t, err)
	assert.Equal(t, map[int][]int{testTitleID: {1002}}, mapping)
}

func TestNormalize_ChapterIDExpandsWhenTitleAlsoRequested(t *testing.T) {
	chapters := []data.Chapter{testChapter(1001, 1), testChapter(1002, 2)}
	catalog := catalogFor(chapters)
	inner := catalog.fetchViewerFunc
	catalog.fetchViewerFunc = func(ctx context.Context, chapterID int) (*data.Viewer, error) {
		v, err := inner(ctx, chapterID)
		if err != nil {
			return nil, err
		}
		v.Chapters = chapters
		return v, nil
	}
	loader := NewLoader(catalog, nil, nil)

	mapping, err := loader.normalize(context.Background(), data.DownloadRequest{
		Titles:     []int{testTitleID},
		ChapterIDs: []int{1001},
	})
	require.NoError(t, err)
	assert.Equal(t, map[int][]int{testTitleID: {1001, 1002}}, mapping)
}

func TestNormalize_RangeFilter(t *testing.T) {
	chapters := []data.Chapter{testChapter(1001, 1), testChapter(1002, 2), testChapter(1003, 3)}
	loader := NewLoader(catalogFor(chapters), nil, nil)

	mapping, err := loader.normalize(context.Background(), data.DownloadRequest{
		Titles: []int{testTitleID},
		Begin:  2,
		End:    2,
	})
	require.NoError(t, err)
	assert.Equal(t, map[int][]int{testTitleID: {1002}}, mapping)
}

func TestNormalize_ChapterNumberFilter(t *testing.T) {
	chapters := []data.Chapter{testChapter(1001, 1), testChapter(1002, 2), testChapter(1003, 3)}
	loader := NewLoader(catalogFor(chapters), nil, nil)

	mapping, err := loader.normalize(context.Background(), data.DownloadRequest{
		Titles:   []int{testTitleID},
		Chapters: []int{1, 3},
	})
	require.NoError(t, err)
	assert.Equal(t, map[int][]int{testTitleID: {1001, 1003}}, mapping)
}

func TestNormalize_LastOverridesRange(t *testing.T) {
	chapters := []data.Chapter{testChapter(1001, 1), testChapter(1002, 2), testChapter(1003, 3)}
	loader := NewLoader(catalogFor(chapters), nil, nil)

	mapping, err := loader.normalize(context.Background(), data.DownloadRequest{
		Titles: []int{testTitleID},
		Begin:  1,
		End:    1,
		Last:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, map[int][]int{testTitleID: {1003}}, mapping)
}
