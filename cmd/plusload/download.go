package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"plusload/pkg/api"
	"plusload/pkg/capture"
	"plusload/pkg/config"
	"plusload/pkg/data"
	"plusload/pkg/exporters"
	"plusload/pkg/services"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download manga titles and chapters",
	Long:  "Download whole titles by ID or individual chapters by chapter ID, exported as raw images, CBZ, PDF, or EPUB",
	Run: func(cmd *cobra.Command, args []string) {
		req, err := buildRequest(cmd)
		cobra.CheckErr(err)

		configFile, _ := cmd.Flags().GetString("config")
		auth, err := config.LoadAuthSettings(configFile, nil)
		cobra.CheckErr(err)

		logger := newLogger()

		var recorder api.Recorder
		if req.CaptureDir != "" {
			store, err := capture.NewStore(req.CaptureDir, logger)
			cobra.CheckErr(err)
			recorder = store
		}

		client := api.NewClient(api.Options{
			Auth:     auth,
			Quality:  req.Quality,
			Split:    req.Split,
			Recorder: recorder,
			Logger:   logger,
		})

		factory, err := exporters.NewFactory(req.Format, exporters.Options{
			Destination:      req.OutDir,
			AddChapterTitle:  req.ChapterTitle,
			AddChapterSubdir: req.ChapterSubdir,
		})
		cobra.CheckErr(err)

		progress, _ := cmd.Flags().GetBool("progress")
		loader := services.NewLoader(client, factory, logger, services.WithProgress(progress))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		summary, err := loader.Download(ctx, req)
		var interrupted *services.InterruptedError
		switch {
		case errors.As(err, &interrupted):
			fmt.Fprintln(os.Stderr, "interrupted, partial progress:")
			renderSummary(interrupted.Summary)
			os.Exit(130)
		case errors.Is(err, services.ErrNoTargets):
			fmt.Fprintln(os.Stderr, err)
			cmd.Usage()
			os.Exit(2)
		case err != nil:
			cobra.CheckErr(err)
		}

		renderSummary(summary)
		if summary.HasFailures() {
			os.Exit(1)
		}
	},
}

func init() {
	flags := downloadCmd.Flags()
	flags.IntSliceP("title", "t", nil, "Title IDs to download completely")
	flags.IntSliceP("chapter", "c", nil, "Chapter IDs to download individually")
	flags.IntSlice("chapter-number", nil, "Keep only these chapter numbers from the selected titles")
	flags.IntP("begin", "b", 0, "First chapter number to download")
	flags.IntP("end", "e", 0, "Last chapter number to download (0 = no limit)")
	flags.BoolP("last", "l", false, "Download only the latest chapter of each title")
	flags.StringP("out", "o", "plusload_downloads", "Output directory")
	flags.StringP("format", "f", "raw", "Output format: raw, cbz, pdf, or epub")
	flags.StringP("quality", "q", "super_high", "Image quality: low, high, or super_high")
	flags.BoolP("split", "s", false, "Request double pages split into two images")
	flags.Bool("chapter-title", false, "Include the chapter subtitle in file names")
	flags.Bool("chapter-subdir", false, "Place raw pages in a per-chapter subdirectory")
	flags.Bool("meta", false, "Export title_metadata.json next to the chapters")
	flags.BoolP("resume", "r", false, "Track per-chapter progress in a manifest and skip completed chapters")
	flags.Bool("reset-manifest", false, "Discard the existing manifest before downloading")
	flags.String("capture-dir", "", "Archive raw API payloads into this directory")
	flags.String("config", "", "Path to the TOML config file")
	flags.Bool("progress", true, "Show per-chapter progress bars")
}

func buildRequest(cmd *cobra.Command) (data.DownloadRequest, error) {
	flags := cmd.Flags()
	titles, _ := flags.GetIntSlice("title")
	chapterIDs, _ := flags.GetIntSlice("chapter")
	chapterNumbers, _ := flags.GetIntSlice("chapter-number")
	begin, _ := flags.GetInt("begin")
	end, _ := flags.GetInt("end")
	last, _ := flags.GetBool("last")
	out, _ := flags.GetString("out")
	format, _ := flags.GetString("format")
	quality, _ := flags.GetString("quality")
	split, _ := flags.GetBool("split")
	chapterTitle, _ := flags.GetBool("chapter-title")
	chapterSubdir, _ := flags.GetBool("chapter-subdir")
	meta, _ := flags.GetBool("meta")
	resume, _ := flags.GetBool("resume")
	resetManifest, _ := flags.GetBool("reset-manifest")
	captureDir, _ := flags.GetString("capture-dir")

	outputFormat := data.OutputFormat(strings.ToLower(format))
	switch outputFormat {
	case data.FormatRaw, data.FormatCBZ, data.FormatPDF, data.FormatEPUB:
	default:
		return data.DownloadRequest{}, fmt.Errorf("unknown output format %q", format)
	}
	if end > 0 && begin > end {
		return data.DownloadRequest{}, fmt.Errorf("begin chapter %d is after end chapter %d", begin, end)
	}

	return data.DownloadRequest{
		OutDir:        out,
		Format:        outputFormat,
		Quality:       quality,
		Split:         split,
		Begin:         begin,
		End:           end,
		Last:          last,
		ChapterTitle:  chapterTitle,
		ChapterSubdir: chapterSubdir,
		Meta:          meta,
		Resume:        resume || resetManifest,
		ManifestReset: resetManifest,
		CaptureDir:    captureDir,
		Titles:        titles,
		Chapters:      chapterNumbers,
		ChapterIDs:    chapterIDs,
	}, nil
}

func renderSummary(summary data.DownloadSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Result", "Chapters"})
	t.AppendRows([]table.Row{
		{"Downloaded", summary.Downloaded},
		{"Skipped (manifest)", summary.SkippedManifest},
		{"Failed", summary.Failed},
	})
	if len(summary.FailedChapterIDs) > 0 {
		ids := make([]string, len(summary.FailedChapterIDs))
		for i, id := range summary.FailedChapterIDs {
			ids[i] = strconv.Itoa(id)
		}
		t.AppendFooter(table.Row{"Failed IDs", strings.Join(ids, ", ")})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}
