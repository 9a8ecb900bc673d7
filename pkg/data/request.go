package data

// MaxChapterID is the inclusive upper bound used when no end of range is
// given.
const MaxChapterID = 2147483647

// OutputFormat selects the exporter used for a download run.
type OutputFormat string

const (
	FormatRaw  OutputFormat = "raw"
	FormatCBZ  OutputFormat = "cbz"
	FormatPDF  OutputFormat = "pdf"
	FormatEPUB OutputFormat = "epub"
)

// DownloadRequest carries every input required to execute one download run.
// It is immutable once constructed.
type DownloadRequest struct {
	OutDir        string
	Format        OutputFormat
	Quality       string
	Split         bool
	Begin         int
	End           int // 0 means open-ended
	Last          bool
	ChapterTitle  bool
	ChapterSubdir bool
	Meta          bool
	Resume        bool
	ManifestReset bool
	CaptureDir    string
	Titles        []int
	Chapters      []int
	ChapterIDs    []int
}

// MaxChapter returns the inclusive upper chapter bound for the run.
func (r DownloadRequest) MaxChapter() int {
	if r.End > 0 {
		return r.End
	}
	return MaxChapterID
}

// HasTargets reports whether at least one title or chapter target is set.
func (r DownloadRequest) HasTargets() bool {
	return len(r.Titles) > 0 || len(r.Chapters) > 0 || len(r.ChapterIDs) > 0
}

// DownloadSummary is the immutable result of one completed download run.
type DownloadSummary struct {
	Downloaded       int
	SkippedManifest  int
	Failed           int
	FailedChapterIDs []int
}

// HasFailures reports whether at least one chapter failed during the run.
func (s DownloadSummary) HasFailures() bool {
	return s.Failed > 0
}
