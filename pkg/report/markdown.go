package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"shotprobe/pkg/metadata"
)

const maxCaptionLen = 80

// MarkdownWriter renders a Report as Markdown
type MarkdownWriter struct {
	output io.Writer
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{output: output}
}

// Write outputs the full report
func (w *MarkdownWriter) Write(r *Report) error {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, r)
	w.writeOutcomes(md, r)
	w.writeFindings(md, r)

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Generated by shotprobe, run `%s`*", r.RunID)

	return md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, r *Report) {
	md.H1("Screenshot Probe Report")
	md.PlainText("")

	analysis := "enabled"
	if !r.Analyze {
		analysis = "disabled"
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + r.RunID + "`"},
			{"Started", r.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", r.Duration().Round(time.Second).String()},
			{"Attempts", fmt.Sprintf("%d / %d", r.Stats.Attempts, r.Checks)},
			{"Workers", strconv.Itoa(r.Workers)},
			{"Analysis", analysis},
			{"Status", r.Status()},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeOutcomes(md *markdown.Markdown, r *Report) {
	s := r.Stats
	md.H2("Outcomes")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows: [][]string{
			{"Hits", strconv.Itoa(s.Hits)},
			{"Successful downloads", strconv.Itoa(s.SuccessfulDownloads)},
			{"Download failures", strconv.Itoa(s.DownloadFailures)},
			{"Analyzed", strconv.Itoa(s.Analyzed)},
			{"Analysis failures", strconv.Itoa(s.AnalysisFailures)},
			{"Misses", strconv.Itoa(s.Misses)},
			{"Removed placeholders", strconv.Itoa(s.PlaceholderMisses)},
			{"Network failures", strconv.Itoa(s.TransientMisses)},
			{"Bytes downloaded", humanize.Bytes(uint64(s.BytesDownloaded))},
			{"**Hit rate**", fmt.Sprintf("**%.2f%%**", s.HitRate()*100)},
		},
	})
	md.PlainText("")

	if s.Attempts > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Attempt outcomes"),
			piechart.WithShowData(true),
		)
		if n := s.SuccessfulDownloads; n > 0 {
			chart.LabelAndIntValue("Downloaded", uint64(n))
		}
		if n := s.DownloadFailures; n > 0 {
			chart.LabelAndIntValue("Download failed", uint64(n))
		}
		if n := s.Misses - s.TransientMisses; n > 0 {
			chart.LabelAndIntValue("Miss", uint64(n))
		}
		if n := s.TransientMisses; n > 0 {
			chart.LabelAndIntValue("Network failure", uint64(n))
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	switch {
	case r.Interrupted:
		md.Warningf("The run was interrupted after %d of %d attempts. Resume it with --resume.", s.Attempts, r.Checks)
	case s.Attempts > 0 && s.TransientMisses*2 > s.Attempts:
		md.Cautionf("%d of %d attempts failed on the network. The site may be rate limiting this client.", s.TransientMisses, s.Attempts)
	case s.SuccessfulDownloads == 0:
		md.Note("No screenshots were downloaded.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFindings(md *markdown.Markdown, r *Report) {
	md.H2("Findings")
	md.PlainText("")

	if len(r.Findings) == 0 {
		md.PlainText("No screenshots were downloaded.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(r.Findings))
	for i, f := range r.Findings {
		caption := f.Caption
		if f.AnalysisError != "" {
			caption = "_analysis failed: " + f.AnalysisError + "_"
		}
		dims := "-"
		if f.Width > 0 {
			dims = fmt.Sprintf("%dx%d (%s)", f.Width, f.Height, metadata.AspectRatio(f.Width, f.Height))
		}
		rows[i] = []string{
			fmt.Sprintf("[%s](%s)", f.Code, f.PageURL),
			"`" + f.File + "`",
			humanize.Bytes(uint64(f.Bytes)),
			dims,
			orDash(truncate(caption, maxCaptionLen)),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Code", "File", "Size", "Dimensions", "Caption"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, f := range r.Findings {
		if f.Answer != "" && f.Answer != f.Caption {
			md.Details(f.Code, f.Answer)
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncate shortens s to maxLen runes and flattens newlines for table cells
func truncate(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, "|", "\\|")
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
