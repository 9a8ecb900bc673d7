package services

import (
	"context"
	"fmt"
	"sort"

	"plusload/pkg/data"
	"plusload/pkg/utils"
)

type chapterRef struct {
	id   int
	name string
}

// normalize turns the request's titles, chapter numbers, and chapter IDs
// into a concrete title -> chapter-ID mapping.
//
// Explicit chapter IDs resolve to their owning title via the viewer; when
// that title is also requested directly, the ID expands to the whole
// title. Chapter numbers only filter chapters discovered through a title
// or chapter-ID target, so numbers alone are a usage error. The last flag
// overrides range filtering and keeps only the final chapter per title.
func (l *Loader) normalize(ctx context.Context, req data.DownloadRequest) (map[int][]int, error) {
	if !req.HasTargets() {
		return nil, ErrNoTargets
	}
	if len(req.Titles) == 0 && len(req.ChapterIDs) == 0 {
		return nil, fmt.Errorf("%w: chapter numbers need a title or chapter id for context", ErrNoTargets)
	}

	remainingTitles := make(map[int]bool, len(req.Titles))
	for _, titleID := range req.Titles {
		remainingTitles[titleID] = true
	}

	refsByTitle := make(map[int][]chapterRef)

	chapterIDs := append([]int(nil), req.ChapterIDs...)
	sort.Ints(chapterIDs)
	for _, chapterID := range chapterIDs {
		viewer, err := l.client.FetchViewer(ctx, chapterID)
		if err != nil {
			return nil, err
		}
		titleID := viewer.TitleID
		if remainingTitles[titleID] {
			delete(remainingTitles, titleID)
			for _, chapter := range viewer.Chapters {
				refsByTitle[titleID] = append(refsByTitle[titleID], chapterRef{id: chapter.ChapterID, name: chapter.Name})
			}
			continue
		}
		refsByTitle[titleID] = append(refsByTitle[titleID], chapterRef{id: viewer.ChapterID, name: viewer.ChapterName})
	}

	titleIDs := make([]int, 0, len(remainingTitles))
	for titleID := range remainingTitles {
		titleIDs = append(titleIDs, titleID)
	}
	sort.Ints(titleIDs)
	for _, titleID := range titleIDs {
		detail, err := l.client.FetchTitleDetail(ctx, titleID)
		if err != nil {
			return nil, err
		}
		for _, chapter := range detail.AllChapters() {
			refsByTitle[titleID] = append(refsByTitle[titleID], chapterRef{id: chapter.ChapterID, name: chapter.Name})
		}
	}

	requestedNumbers := make(map[int]bool, len(req.Chapters))
	for _, number := range req.Chapters {
		requestedNumbers[number] = true
	}

	mapping := make(map[int][]int, len(refsByTitle))
	for titleID, refs := range refsByTitle {
		var kept []chapterRef
		if req.Last {
			if len(refs) > 0 {
				kept = refs[len(refs)-1:]
			}
		} else {
			for _, ref := range refs {
				number, _ := utils.ChapterNameToInt(ref.name)
				if number < req.Begin || number > req.MaxChapter() {
					continue
				}
				if len(requestedNumbers) > 0 && !requestedNumbers[number] {
					continue
				}
				kept = append(kept, ref)
			}
		}
		seen := make(map[int]bool, len(kept))
		ids := make([]int, 0, len(kept))
		for _, ref := range kept {
			if !seen[ref.id] {
				seen[ref.id] = true
				ids = append(ids, ref.id)
			}
		}
		mapping[titleID] = ids
	}
	return mapping, nil
}
