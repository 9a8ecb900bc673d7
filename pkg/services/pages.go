package services

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/schollz/progressbar/v3"

	"plusload/pkg/data"
	"plusload/pkg/exporters"
)

// FetchPageImage returns the bytes of one page, decrypted when needed.
type FetchPageImage func(ctx context.Context, page data.MangaPage) ([]byte, error)

// xorDecrypt applies the repeating-key XOR cipher in place and returns the
// buffer. Applying it twice with the same key restores the input.
func xorDecrypt(payload []byte, key []byte) []byte {
	keyLen := len(key)
	for i := range payload {
		payload[i] ^= key[i%keyLen]
	}
	return payload
}

// ExportPages streams a chapter's ordered pages through the exporter.
//
// The page counter consumes one slot per page, except double-spread pages
// which consume two and are addressed as an index pair; exporters rely on
// that rule for filename generation and skip checks. SkipImage is always
// consulted before the page bytes are fetched, so already-exported pages
// cost no network traffic.
func ExportPages(
	ctx context.Context,
	pages []data.MangaPage,
	chapterName string,
	exporter exporters.Exporter,
	fetch FetchPageImage,
	showProgress bool,
) error {
	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.NewOptions(len(pages),
			progressbar.OptionSetDescription(chapterName),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
	}

	slot := 0
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		var index exporters.PageIndex
		if page.Type == data.PageDouble {
			index = exporters.SpreadIndex(slot)
			slot += 2
		} else {
			index = exporters.Single(slot)
			slot++
		}
		if bar != nil {
			bar.Add(1)
		}

		if exporter.SkipImage(index) {
			continue
		}
		blob, err := fetch(ctx, page)
		if err != nil {
			return fmt.Errorf("fetch page %s: %w", index, err)
		}
		if err := exporter.AddImage(blob, index); err != nil {
			return fmt.Errorf("export page %s: %w", index, err)
		}
	}
	return nil
}

// fetchPageImage downloads one page, XOR-decrypting it when the page
// carries an encryption key.
func (l *Loader) fetchPageImage(ctx context.Context, page data.MangaPage) ([]byte, error) {
	blob, err := l.client.DownloadImage(ctx, page.ImageURL)
	if err != nil {
		return nil, err
	}
	if page.EncryptionKey == "" {
		return blob, nil
	}
	key, err := hex.DecodeString(page.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("decode page encryption key: %w", err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("empty page encryption key")
	}
	return xorDecrypt(blob, key), nil
}
