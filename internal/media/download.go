package media

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// DefaultDownloadTimeout is the default timeout for image downloads.
const DefaultDownloadTimeout = 30 * time.Second

// Downloader fetches product images by URL.
type Downloader struct {
	client  *resty.Client
	maxSize int64
}

// NewDownloader creates a Downloader with default settings.
func NewDownloader() *Downloader {
	return &Downloader{
		client:  resty.New().SetDebug(false).SetTimeout(DefaultDownloadTimeout),
		maxSize: DefaultMaxImageSize,
	}
}

// WithTimeout sets a custom timeout for downloads.
func (d *Downloader) WithTimeout(timeout time.Duration) *Downloader {
	d.client.SetTimeout(timeout)
	return d
}

// WithMaxSize sets a custom maximum file size.
func (d *Downloader) WithMaxSize(maxSize int64) *Downloader {
	d.maxSize = maxSize
	return d
}

// Download fetches an image and returns it ready for encoding. All failures
// wrap ErrRead.
func (d *Downloader) Download(ctx context.Context, imageURL string) (*Image, error) {
	if !strings.HasPrefix(imageURL, "http://") && !strings.HasPrefix(imageURL, "https://") {
		return nil, fmt.Errorf("%w: unsupported image url %q", ErrRead, imageURL)
	}

	log.Info().Str("url", imageURL).Msg("downloading product image")

	res, err := d.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(imageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to download image: %v", ErrRead, err)
	}
	body := res.RawBody()
	defer body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: download failed: status %d", ErrRead, res.StatusCode())
	}

	contentType := res.Header().Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: invalid content type: expected image/*, got %s", ErrRead, contentType)
	}

	if res.RawResponse.ContentLength > d.maxSize {
		return nil, fmt.Errorf("%w: image too large: %d bytes exceeds limit of %d bytes", ErrRead, res.RawResponse.ContentLength, d.maxSize)
	}

	data, err := io.ReadAll(io.LimitReader(body, d.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read image: %v", ErrRead, err)
	}
	if int64(len(data)) > d.maxSize {
		return nil, fmt.Errorf("%w: image too large: exceeds limit of %d bytes", ErrRead, d.maxSize)
	}

	return FromBytes(data, contentType)
}
