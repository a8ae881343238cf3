package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// DownloadError is a failed export. The backend answered, but with a JSON
// error instead of a spreadsheet.
type DownloadError struct {
	Status  int
	Message string
}

func (e *DownloadError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("download failed: %s", e.Message)
	}
	return fmt.Sprintf("download failed: HTTP %d", e.Status)
}

// Download is a successful export stream. Callers must close Body.
type Download struct {
	Body               io.ReadCloser
	ContentDisposition string
	ContentType        string
	ContentLength      int64
}

// DownloadReplies requests the reply export for the given filters. The
// status code is checked before the body is handed out, so an error body is
// never mistaken for a spreadsheet.
func (c *Client) DownloadReplies(ctx context.Context, query url.Values) (*Download, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/replies/download", query, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet, application/json")

	resp, err := c.do(req, "replies_download")
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		apiErr := decodeError(resp)
		return nil, &DownloadError{Status: apiErr.Status, Message: apiErr.Message}
	}

	return &Download{
		Body:               resp.Body,
		ContentDisposition: resp.Header.Get("Content-Disposition"),
		ContentType:        resp.Header.Get("Content-Type"),
		ContentLength:      resp.ContentLength,
	}, nil
}
