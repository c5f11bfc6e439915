package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxImageSize is the largest image accepted for encoding (10MB).
const DefaultMaxImageSize = 10 * 1024 * 1024

// ErrRead is returned when an image cannot be read.
var ErrRead = errors.New("image read failed")

// Image is an in-memory product photo ready to be sent to the model.
type Image struct {
	Data     []byte
	MIMEType string
}

// Encode returns the standard base64 encoding of data.
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DataURL formats an encoded payload as a directly displayable data URL.
func DataURL(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, Encode(data))
}

// ParseDataURL decodes a base64 data URL back into an image.
func ParseDataURL(s string) (*Image, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, fmt.Errorf("%w: not a data URL", ErrRead)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("%w: data URL has no payload", ErrRead)
	}
	mimeType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return nil, fmt.Errorf("%w: data URL is not base64 encoded", ErrRead)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	return &Image{Data: data, MIMEType: mimeType}, nil
}

// Base64 returns the image payload as base64.
func (img *Image) Base64() string {
	return Encode(img.Data)
}

// DataURL returns the image as a data URL.
func (img *Image) DataURL() string {
	return DataURL(img.MIMEType, img.Data)
}

// Read reads an image from r. declaredType is the MIME type reported by the
// upload; when it is empty or generic the content is sniffed instead.
func Read(r io.Reader, declaredType string) (*Image, error) {
	return readLimited(r, declaredType, DefaultMaxImageSize)
}

// ReadFile reads an image from disk, using the file extension as a MIME hint.
func ReadFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	defer f.Close()
	return Read(f, mimeFromExt(path))
}

// FromBytes wraps already-read bytes, validating type and size.
func FromBytes(data []byte, declaredType string) (*Image, error) {
	return readLimited(bytes.NewReader(data), declaredType, DefaultMaxImageSize)
}

func readLimited(r io.Reader, declaredType string, maxSize int64) (*Image, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: no image provided", ErrRead)
	}

	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: image is empty", ErrRead)
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w: image too large: exceeds limit of %d bytes", ErrRead, maxSize)
	}

	mimeType := normalizeMIME(declaredType)
	if mimeType == "" {
		mimeType = normalizeMIME(http.DetectContentType(data))
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("%w: unsupported content type %q", ErrRead, mimeType)
	}

	return &Image{Data: data, MIMEType: mimeType}, nil
}

// normalizeMIME strips parameters and drops generic types that carry no
// information about the image format.
func normalizeMIME(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if i := strings.Index(t, ";"); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	if t == "application/octet-stream" {
		return ""
	}
	return t
}

func mimeFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return ""
	}
}
