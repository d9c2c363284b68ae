// Package export serializes a timeline plus its markers to an
// interchange format.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xiaot623/replay/domain"
)

// Format is an export output format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
)

// Options select the format, the included marker sets, and the event
// filters. TimeRange and Kinds combine with AND semantics.
type Options struct {
	Format             Format
	IncludeBookmarks   bool
	IncludeAnnotations bool
	IncludeSegments    bool
	From               *int64 // inclusive, Unix ms
	To                 *int64 // inclusive, Unix ms
	Kinds              []domain.EventKind
}

// Render serializes the archive. JSON is lossless and round-trips via
// Import; csv and markdown are flattened one-row-per-event projections
// and do not round-trip. Returns the bytes and a mime type.
func Render(archive domain.Archive, opts Options) ([]byte, string, error) {
	filtered := filter(archive, opts)

	switch opts.Format {
	case FormatJSON, "":
		data, err := json.MarshalIndent(filtered, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("marshal archive: %w", err)
		}
		return data, "application/json", nil
	case FormatCSV:
		data, err := renderCSV(filtered)
		if err != nil {
			return nil, "", err
		}
		return data, "text/csv", nil
	case FormatMarkdown:
		return renderMarkdown(filtered), "text/markdown", nil
	}
	return nil, "", fmt.Errorf("format %q: %w", opts.Format, domain.ErrInvalidRange)
}

// RenderSegment restricts the export to one segment's time range before
// applying the remaining filters.
func RenderSegment(archive domain.Archive, segmentID string, opts Options) ([]byte, string, error) {
	var seg *domain.Segment
	for i := range archive.Segments {
		if archive.Segments[i].SegmentID == segmentID {
			seg = &archive.Segments[i]
			break
		}
	}
	if seg == nil {
		return nil, "", fmt.Errorf("segment %s: %w", segmentID, domain.ErrNotFound)
	}

	// Segment bounds narrow any caller-supplied range.
	from, to := seg.StartTs, seg.EndTs
	if opts.From != nil && *opts.From > from {
		from = *opts.From
	}
	if opts.To != nil && *opts.To < to {
		to = *opts.To
	}
	opts.From, opts.To = &from, &to
	return Render(archive, opts)
}

// Import parses a JSON export back into an archive equivalent to the
// one it was rendered from.
func Import(data []byte) (*domain.Archive, error) {
	var archive domain.Archive
	if err := json.Unmarshal(data, &archive); err != nil {
		return nil, fmt.Errorf("parse archive: %w", err)
	}
	return &archive, nil
}

func filter(archive domain.Archive, opts Options) domain.Archive {
	out := domain.Archive{
		ReplayID:   archive.ReplayID,
		SessionID:  archive.SessionID,
		Lanes:      archive.Lanes,
		ExportedAt: archive.ExportedAt,
	}
	if out.ExportedAt.IsZero() {
		out.ExportedAt = time.Now()
	}

	for _, ev := range archive.Events {
		if opts.From != nil && ev.Ts < *opts.From {
			continue
		}
		if opts.To != nil && ev.Ts > *opts.To {
			continue
		}
		if !includeKind(opts.Kinds, ev.Kind) {
			continue
		}
		out.Events = append(out.Events, ev)
	}

	if opts.IncludeBookmarks {
		out.Bookmarks = archive.Bookmarks
	}
	if opts.IncludeAnnotations {
		out.Annotations = archive.Annotations
	}
	if opts.IncludeSegments {
		out.Segments = archive.Segments
	}
	return out
}

func includeKind(kinds []domain.EventKind, k domain.EventKind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}

func renderCSV(archive domain.Archive) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"index", "ts", "kind", "lane", "event_id", "summary"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for i := range archive.Events {
		ev := &archive.Events[i]
		row := []string{
			strconv.Itoa(ev.Index),
			strconv.FormatInt(ev.Ts, 10),
			string(ev.Kind),
			ev.Lane,
			ev.EventID,
			domain.Summary(ev),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func renderMarkdown(archive domain.Archive) []byte {
	var b strings.Builder

	title := archive.SessionID
	if title == "" {
		title = archive.ReplayID
	}
	fmt.Fprintf(&b, "# Session Replay Export: %s\n\n", title)
	fmt.Fprintf(&b, "Exported %s, %d events\n\n", archive.ExportedAt.UTC().Format(time.RFC3339), len(archive.Events))

	b.WriteString("| # | Time | Kind | Summary |\n")
	b.WriteString("|---|------|------|---------|\n")
	for i := range archive.Events {
		ev := &archive.Events[i]
		ts := time.UnixMilli(ev.Ts).UTC().Format("15:04:05.000")
		summary := strings.ReplaceAll(domain.Summary(ev), "|", "\\|")
		summary = strings.ReplaceAll(summary, "\n", " ")
		fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", ev.Index, ts, ev.Kind, summary)
	}

	if len(archive.Bookmarks) > 0 {
		b.WriteString("\n## Bookmarks\n\n")
		for _, bm := range archive.Bookmarks {
			fmt.Fprintf(&b, "- **%s** at event %d", bm.Title, bm.Index)
			if bm.Description != "" {
				fmt.Fprintf(&b, " : %s", bm.Description)
			}
			b.WriteString("\n")
		}
	}
	if len(archive.Annotations) > 0 {
		b.WriteString("\n## Annotations\n\n")
		for _, an := range archive.Annotations {
			ts := time.UnixMilli(an.Ts).UTC().Format("15:04:05.000")
			fmt.Fprintf(&b, "- [%s] %s: %s\n", ts, an.Author, an.Content)
		}
	}
	if len(archive.Segments) > 0 {
		b.WriteString("\n## Segments\n\n")
		for _, seg := range archive.Segments {
			start := time.UnixMilli(seg.StartTs).UTC().Format("15:04:05.000")
			end := time.UnixMilli(seg.EndTs).UTC().Format("15:04:05.000")
			fmt.Fprintf(&b, "- **%s**: %s to %s\n", seg.Title, start, end)
		}
	}

	return []byte(b.String())
}
