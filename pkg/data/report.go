package data

// RunReport accumulates run counters while a download executes and freezes
// into a DownloadSummary at the end.
type RunReport struct {
	downloaded       int
	skippedManifest  int
	failed           int
	failedChapterIDs []int
}

// MarkDownloaded increments the downloaded chapter count.
func (r *RunReport) MarkDownloaded() {
	r.downloaded++
}

// MarkManifestSkipped adds n to the manifest-skip counter.
func (r *RunReport) MarkManifestSkipped(n int) {
	r.skippedManifest += n
}

// MarkFailed records one failed chapter.
func (r *RunReport) MarkFailed(chapterID int) {
	r.failed++
	r.failedChapterIDs = append(r.failedChapterIDs, chapterID)
}

// Summary freezes the report into an immutable summary.
func (r *RunReport) Summary() DownloadSummary {
	ids := make([]int, len(r.failedChapterIDs))
	copy(ids, r.failedChapterIDs)
	return DownloadSummary{
		Downloaded:       r.downloaded,
		SkippedManifest:  r.skippedManifest,
		Failed:           r.failed,
		FailedChapterIDs: ids,
	}
}
