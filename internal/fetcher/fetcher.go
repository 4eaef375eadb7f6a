package fetcher

import (
	"context"
	"io"
)

// Fetcher abstracts transport for remote dataset files. HTTP and FTP
// implementations exist; the filings loader does not care which one it gets.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL into a local file. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)

	// HeadETag returns a change token for the remote file without
	// downloading it.
	HeadETag(ctx context.Context, url string) (string, error)

	// DownloadIfChanged fetches the URL only when its change token differs
	// from etag. Returns (body, newToken, changed, error); body is nil when
	// unchanged.
	DownloadIfChanged(ctx context.Context, url string, etag string) (io.ReadCloser, string, bool, error)
}
