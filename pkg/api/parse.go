// Package api decodes MangaPlus binary responses and exposes a cached,
// retrying client for the two endpoints the downloader consumes.
package api

import (
	"plusload/pkg/data"

	"google.golang.org/protobuf/encoding/protowire"
)

// Wire field numbers of the response envelope and its payload messages.
// The decoder walks the raw protobuf wire format directly instead of
// relying on generated code; unknown fields are skipped.
const (
	fieldSuccess = 1

	fieldSuccessTitleDetail = 8
	fieldSuccessMangaViewer = 10

	fieldTitleID               = 1
	fieldTitleName             = 2
	fieldTitleAuthor           = 3
	fieldTitlePortraitImageURL = 4
	fieldTitleLanguage         = 7

	fieldChapterTitleID      = 1
	fieldChapterID           = 2
	fieldChapterName         = 3
	fieldChapterSubTitle     = 4
	fieldChapterThumbnailURL = 5

	fieldDetailTitle             = 1
	fieldDetailOverview          = 3
	fieldDetailNonAppearanceInfo = 8
	fieldDetailNumberOfViews     = 22
	fieldDetailChapterListGroup  = 28

	fieldGroupFirstList = 2
	fieldGroupMidList   = 3
	fieldGroupLastList  = 4

	fieldViewerPages       = 1
	fieldViewerChapterID   = 2
	fieldViewerChapters    = 3
	fieldViewerTitleName   = 5
	fieldViewerChapterName = 6
	fieldViewerTitleID     = 9

	fieldPageMangaPage = 1
	fieldPageLastPage  = 3

	fieldMangaPageImageURL      = 1
	fieldMangaPageWidth         = 2
	fieldMangaPageHeight        = 3
	fieldMangaPageType          = 4
	fieldMangaPageEncryptionKey = 5

	fieldLastPageCurrentChapter = 1
	fieldLastPageNextChapter    = 2
)

type wireField struct {
	num    protowire.Number
	varint uint64
	bytes  []byte
}

// walkMessage decodes one message's fields in order. Length-delimited
// payloads arrive in f.bytes, varints in f.varint; fixed-width and group
// fields are skipped.
func walkMessage(b []byte, visit func(f wireField) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			if err := visit(wireField{num: num, varint: v}); err != nil {
				return err
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			if err := visit(wireField{num: num, bytes: v}); err != nil {
				return err
			}
		case protowire.Fixed32Type:
			_, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		case protowire.Fixed64Type:
			_, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func decodeTitle(b []byte) (data.Title, error) {
	var title data.Title
	err := walkMessage(b, func(f wireField) error {
		switch f.num {
		case fieldTitleID:
			title.TitleID = int(f.varint)
		case fieldTitleName:
			title.Name = string(f.bytes)
		case fieldTitleAuthor:
			title.Author = string(f.bytes)
		case fieldTitlePortraitImageURL:
			title.PortraitImageURL = string(f.bytes)
		case fieldTitleLanguage:
			title.Language = data.Language(f.varint)
		}
		return nil
	})
	return title, err
}

func decodeChapter(b []byte) (data.Chapter, error) {
	var chapter data.Chapter
	err := walkMessage(b, func(f wireField) error {
		switch f.num {
		case fieldChapterTitleID:
			chapter.TitleID = int(f.varint)
		case fieldChapterID:
			chapter.ChapterID = int(f.varint)
		case fieldChapterName:
			chapter.Name = string(f.bytes)
		case fieldChapterSubTitle:
			chapter.SubTitle = string(f.bytes)
		case fieldChapterThumbnailURL:
			chapter.ThumbnailURL = string(f.bytes)
		}
		return nil
	})
	return chapter, err
}

func decodeChapterGroup(b []byte) (data.ChapterGroup, error) {
	var group data.ChapterGroup
	err := walkMessage(b, func(f wireField) error {
		switch f.num {
		case fieldGroupFirstList, fieldGroupMidList, fieldGroupLastList:
			chapter, err := decodeChapter(f.bytes)
			if err != nil {
				return err
			}
			switch f.num {
			case fieldGroupFirstList:
				group.FirstChapterList = append(group.FirstChapterList, chapter)
			case fieldGroupMidList:
				group.MidChapterList = append(group.MidChapterList, chapter)
			case fieldGroupLastList:
				group.LastChapterList = append(group.LastChapterList, chapter)
			}
		}
		return nil
	})
	return group, err
}

func decodeTitleDetail(b []byte) (*data.TitleDetail, error) {
	detail := &data.TitleDetail{}
	err := walkMessage(b, func(f wireField) error {
		switch f.num {
		case fieldDetailTitle:
			title, err := decodeTitle(f.bytes)
			if err != nil {
				return err
			}
			detail.Title = title
		case fieldDetailOverview:
			detail.Overview = string(f.bytes)
		case fieldDetailNonAppearanceInfo:
			detail.NonAppearanceInfo = string(f.bytes)
		case fieldDetailNumberOfViews:
			detail.NumberOfViews = int(f.varint)
		case fieldDetailChapterListGroup:
			group, err := decodeChapterGroup(f.bytes)
			if err != nil {
				return err
			}
			detail.ChapterListGroups = append(detail.ChapterListGroups, group)
		}
		return nil
	})
	return detail, err
}

func decodeMangaPage(b []byte) (*data.MangaPage, error) {
	page := &data.MangaPage{}
	err := walkMessage(b, func(f wireField) error {
		switch f.num {
		case fieldMangaPageImageURL:
			page.ImageURL = string(f.bytes)
		case fieldMangaPageWidth:
			page.Width = int(f.varint)
		case fieldMangaPageHeight:
			page.Height = int(f.varint)
		case fieldMangaPageType:
			page.Type = data.PageType(f.varint)
		case fieldMangaPageEncryptionKey:
			page.EncryptionKey = string(f.bytes)
		}
		return nil
	})
	return page, err
}

func decodeLastPage(b []byte) (*data.LastPage, error) {
	last := &data.LastPage{}
	err := walkMessage(b, func(f wireField) error {
		switch f.num {
		case fieldLastPageCurrentChapter:
			chapter, err := decodeChapter(f.bytes)
			if err != nil {
				return err
			}
			last.CurrentChapter = chapter
		case fieldLastPageNextChapter:
			chapter, err := decodeChapter(f.bytes)
			if err != nil {
				return err
			}
			if chapter.ChapterID != 0 {
				last.NextChapter = &chapter
			}
		}
		return nil
	})
	return last, err
}

func decodePage(b []byte) (data.Page, error) {
	var page data.Page
	err := walkMessage(b, func(f wireField) error {
		switch f.num {
		case fieldPageMangaPage:
			mangaPage, err := decodeMangaPage(f.bytes)
			if err != nil {
				return err
			}
			page.MangaPage = mangaPage
		case fieldPageLastPage:
			lastPage, err := decodeLastPage(f.bytes)
			if err != nil {
				return err
			}
			page.LastPage = lastPage
		}
		return nil
	})
	return page, err
}

func decodeViewer(b []byte) (*data.Viewer, error) {
	viewer := &data.Viewer{}
	err := walkMessage(b, func(f wireField) error {
		switch f.num {
		case fieldViewerPages:
			page, err := decodePage(f.bytes)
			if err != nil {
				return err
			}
			viewer.Pages = append(viewer.Pages, page)
		case fieldViewerChapterID:
			viewer.ChapterID = int(f.varint)
		case fieldViewerChapters:
			chapter, err := decodeChapter(f.bytes)
			if err != nil {
				return err
			}
			viewer.Chapters = append(viewer.Chapters, chapter)
		case fieldViewerTitleName:
			viewer.TitleName = string(f.bytes)
		case fieldViewerChapterName:
			viewer.ChapterName = string(f.bytes)
		case fieldViewerTitleID:
			viewer.TitleID = int(f.varint)
		}
		return nil
	})
	return viewer, err
}

// successPayload extracts one payload field out of the success envelope.
func successPayload(content []byte, endpoint string, payloadField protowire.Number) ([]byte, error) {
	var success []byte
	if err := walkMessage(content, func(f wireField) error {
		if f.num == fieldSuccess && f.bytes != nil {
			success = f.bytes
		}
		return nil
	}); err != nil {
		return nil, &ResponseError{Endpoint: endpoint, Reason: "malformed wire payload: " + err.Error()}
	}
	if success == nil {
		return nil, &ResponseError{Endpoint: endpoint, Reason: "missing success envelope"}
	}

	var payload []byte
	if err := walkMessage(success, func(f wireField) error {
		if f.num == payloadField && f.bytes != nil {
			payload = f.bytes
		}
		return nil
	}); err != nil {
		return nil, &ResponseError{Endpoint: endpoint, Reason: "malformed success payload: " + err.Error()}
	}
	if payload == nil {
		return nil, &ResponseError{Endpoint: endpoint, Reason: "missing payload field"}
	}
	return payload, nil
}

// ParseViewer decodes and validates a manga_viewer response.
func ParseViewer(content []byte) (*data.Viewer, error) {
	payload, err := successPayload(content, EndpointMangaViewer, fieldSuccessMangaViewer)
	if err != nil {
		return nil, err
	}
	viewer, err := decodeViewer(payload)
	if err != nil {
		return nil, &ResponseError{Endpoint: EndpointMangaViewer, Reason: "malformed viewer payload: " + err.Error()}
	}
	if viewer.TitleID == 0 || viewer.ChapterID == 0 {
		return nil, &ResponseError{Endpoint: EndpointMangaViewer, Reason: "missing title or chapter identity"}
	}
	if len(viewer.Pages) == 0 {
		return nil, &ResponseError{Endpoint: EndpointMangaViewer, Reason: "viewer has no pages"}
	}
	return viewer, nil
}

// ParseTitleDetail decodes and validates a title_detailV3 response.
func ParseTitleDetail(content []byte) (*data.TitleDetail, error) {
	payload, err := successPayload(content, EndpointTitleDetail, fieldSuccessTitleDetail)
	if err != nil {
		return nil, err
	}
	detail, err := decodeTitleDetail(payload)
	if err != nil {
		return nil, &ResponseError{Endpoint: EndpointTitleDetail, Reason: "malformed title payload: " + err.Error()}
	}
	if detail.Title.TitleID == 0 || detail.Title.Name == "" {
		return nil, &ResponseError{Endpoint: EndpointTitleDetail, Reason: "missing title identity"}
	}
	if len(detail.AllChapters()) == 0 {
		return nil, &ResponseError{Endpoint: EndpointTitleDetail, Reason: "title has no chapters"}
	}
	return detail, nil
}
