// Package export builds reply export requests and saves the resulting
// spreadsheet.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/xuri/excelize/v2"

	"github.com/foxzi/bulkdash/internal/audit"
	"github.com/foxzi/bulkdash/internal/backend"
	"github.com/foxzi/bulkdash/internal/metrics"
	"github.com/foxzi/bulkdash/internal/pagination"
)

// DefaultFilename is used when the response names no file
const DefaultFilename = "whatsapp_replies.xlsx"

var (
	ErrEmptyExport        = errors.New("nothing to export for the selected filters")
	ErrDownloadInProgress = errors.New("an export is already downloading")
)

// filenameRe is the loose fallback for headers mime cannot parse
var filenameRe = regexp.MustCompile(`filename[^;=\n]*=("[^"]*"|'[^']*'|[^;\n]*)`)

// BuildQuery encodes the filters for the export endpoint. Only non-empty
// dimensions are sent and the page is never part of it.
func BuildQuery(filters pagination.FilterState) url.Values {
	return pagination.FilterParams(filters)
}

// Encode returns the query string for filters. Keys are sorted so equal
// filters always give the same string.
func Encode(filters pagination.FilterState) string {
	return BuildQuery(filters).Encode()
}

// FilenameFromDisposition extracts the file name from a Content-Disposition
// value. Directory parts are dropped; DefaultFilename is returned when no
// usable name is present.
func FilenameFromDisposition(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return DefaultFilename
	}

	if _, params, err := mime.ParseMediaType(header); err == nil {
		if name := sanitize(params["filename"]); name != "" {
			return name
		}
	}

	if m := filenameRe.FindStringSubmatch(header); m != nil {
		if name := sanitize(m[1]); name != "" {
			return name
		}
	}
	return DefaultFilename
}

var quotes = strings.NewReplacer(`"`, "", "'", "")

func sanitize(name string) string {
	name = quotes.Replace(name)
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name == "" {
		return ""
	}
	name = path.Base(name)
	switch name {
	case ".", "..", "/":
		return ""
	}
	return name
}

// Client downloads exports
type Client interface {
	DownloadReplies(ctx context.Context, query url.Values) (*backend.Download, error)
}

// Result describes a saved export
type Result struct {
	Filename string
	Path     string
	Bytes    int64
}

// Downloader runs one export at a time
type Downloader struct {
	client      Client
	audit       audit.Recorder
	logger      *slog.Logger
	downloading atomic.Bool
}

// NewDownloader creates a downloader. A nil recorder disables auditing.
func NewDownloader(client Client, rec audit.Recorder, logger *slog.Logger) *Downloader {
	if rec == nil {
		rec = audit.Discard
	}
	return &Downloader{
		client: client,
		audit:  rec,
		logger: logger.With("component", "export"),
	}
}

// Downloading reports whether an export is in progress
func (d *Downloader) Downloading() bool {
	return d.downloading.Load()
}

// Stream requests the export and hands the body to fn. resultCount is the
// size of the result set the operator is looking at; an empty set is
// refused without contacting the backend. A backend refusal is returned as
// *backend.DownloadError before fn is called.
func (d *Downloader) Stream(ctx context.Context, filters pagination.FilterState, resultCount int, source string,
	fn func(filename, contentType string, body io.Reader) (int64, error)) (*Result, error) {
	if resultCount <= 0 {
		metrics.IncExports("empty")
		return nil, ErrEmptyExport
	}
	if !d.downloading.CompareAndSwap(false, true) {
		return nil, ErrDownloadInProgress
	}
	defer d.downloading.Store(false)

	query := BuildQuery(filters)
	entry := &audit.Entry{
		Action:     audit.ActionExport,
		CampaignID: filters.CampaignID,
		Source:     source,
	}

	dl, err := d.client.DownloadReplies(ctx, query)
	if err != nil {
		metrics.IncExports("error")
		entry.Outcome = audit.OutcomeError
		entry.Detail = err.Error()
		d.record(ctx, entry)
		d.logger.Error("export failed", "query", query.Encode(), "error", err)
		return nil, err
	}
	defer dl.Body.Close()

	res := &Result{Filename: FilenameFromDisposition(dl.ContentDisposition)}
	res.Bytes, err = fn(res.Filename, dl.ContentType, dl.Body)
	if err != nil {
		metrics.IncExports("error")
		entry.Outcome = audit.OutcomeError
		entry.Detail = err.Error()
		d.record(ctx, entry)
		d.logger.Error("export write failed", "file", res.Filename, "error", err)
		return nil, err
	}

	metrics.IncExports("ok")
	entry.Outcome = audit.OutcomeOK
	entry.Detail = fmt.Sprintf("%s (%d bytes)", res.Filename, res.Bytes)
	d.record(ctx, entry)
	d.logger.Info("export downloaded", "file", res.Filename, "bytes", res.Bytes, "query", query.Encode())
	return res, nil
}

// Download saves the export into dir under the name the backend chose.
// Nothing is written unless the backend returned a spreadsheet.
func (d *Downloader) Download(ctx context.Context, filters pagination.FilterState, resultCount int, dir, source string) (*Result, error) {
	var saved string
	res, err := d.Stream(ctx, filters, resultCount, source, func(filename, _ string, body io.Reader) (int64, error) {
		tmp, err := os.CreateTemp(dir, ".export-*")
		if err != nil {
			return 0, fmt.Errorf("create export file: %w", err)
		}
		n, err := io.Copy(tmp, body)
		if cerr := tmp.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(tmp.Name())
			return n, fmt.Errorf("write export: %w", err)
		}
		saved = filepath.Join(dir, filename)
		if err := os.Rename(tmp.Name(), saved); err != nil {
			os.Remove(tmp.Name())
			return n, fmt.Errorf("save export: %w", err)
		}
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	res.Path = saved
	return res, nil
}

func (d *Downloader) record(ctx context.Context, e *audit.Entry) {
	if err := d.audit.Record(ctx, e); err != nil {
		d.logger.Warn("failed to record audit entry", "action", e.Action, "error", err)
	}
}

// Summary describes a downloaded workbook
type Summary struct {
	Sheet string
	Rows  int
}

// Summarize opens a saved export and counts its data rows
func Summarize(file string) (*Summary, error) {
	f, err := excelize.OpenFile(file)
	if err != nil {
		return nil, fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("export has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	s := &Summary{Sheet: sheets[0]}
	if len(rows) > 1 {
		s.Rows = len(rows) - 1
	}
	return s, nil
}
