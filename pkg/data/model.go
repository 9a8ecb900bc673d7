package data

// Title is one serialized work on the service, identified by a numeric ID.
type Title struct {
	TitleID          int
	Name             string
	Author           string
	PortraitImageURL string
	Language         Language
}

// Chapter is one installment of a title. ChapterID is the canonical API
// identifier; Name is the human-facing chapter number ("#012", "ex").
type Chapter struct {
	TitleID      int
	ChapterID    int
	Name         string
	SubTitle     string
	ThumbnailURL string
}

// ChapterGroup carries the three chapter lists the title-detail endpoint
// returns per group.
type ChapterGroup struct {
	FirstChapterList []Chapter
	MidChapterList   []Chapter
	LastChapterList  []Chapter
}

// TitleDetail is the parsed title_detailV3 payload.
type TitleDetail struct {
	Title             Title
	Overview          string
	NonAppearanceInfo string
	NumberOfViews     int
	ChapterListGroups []ChapterGroup
}

// MangaPage is a single downloadable page image. EncryptionKey is a hex
// string; empty means the image bytes are served unencrypted.
type MangaPage struct {
	ImageURL      string
	Width         int
	Height        int
	Type          PageType
	EncryptionKey string
}

// LastPage terminates a viewer page list and links the current chapter to
// its successor. NextChapter is nil when the chapter is the latest one.
type LastPage struct {
	CurrentChapter Chapter
	NextChapter    *Chapter
}

// Page is one entry in a viewer's ordered page list. Exactly one of the
// fields is set.
type Page struct {
	MangaPage *MangaPage
	LastPage  *LastPage
}

// Viewer is the parsed manga_viewer payload for one chapter.
type Viewer struct {
	TitleID     int
	ChapterID   int
	TitleName   string
	ChapterName string
	Pages       []Page
	Chapters    []Chapter
}

// HasLastPage reports whether the viewer ends with a terminal last-page
// entry. Its absence means the chapter is behind a subscription wall.
func (v *Viewer) HasLastPage() bool {
	if len(v.Pages) == 0 {
		return false
	}
	return v.Pages[len(v.Pages)-1].LastPage != nil
}

// ImagePages returns the viewer pages that carry a downloadable image, in
// reading order.
func (v *Viewer) ImagePages() []MangaPage {
	pages := make([]MangaPage, 0, len(v.Pages))
	for _, page := range v.Pages {
		if page.MangaPage != nil && page.MangaPage.ImageURL != "" {
			pages = append(pages, *page.MangaPage)
		}
	}
	return pages
}

// AllChapters returns every chapter across all groups and lists in payload
// order.
func (t *TitleDetail) AllChapters() []Chapter {
	var chapters []Chapter
	for _, group := range t.ChapterListGroups {
		chapters = append(chapters, group.FirstChapterList...)
		chapters = append(chapters, group.MidChapterList...)
		chapters = append(chapters, group.LastChapterList...)
	}
	return chapters
}
