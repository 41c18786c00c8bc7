// Package upload stores images and metadata documents on IPFS through the
// upload endpoint and returns their locators.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"puzzle-mint/internal/observability"
)

// ErrUploadFailed is returned for any upload failure: transport error,
// non-success response, or a malformed response body.
var ErrUploadFailed = errors.New("upload failed")

// Kind is the upload type sent in the "type" form field.
type Kind string

const (
	KindFile     Kind = "file"
	KindMetadata Kind = "metadata"
)

// LocatorScheme prefixes every locator returned by the endpoint.
const LocatorScheme = "ipfs://"

// DefaultTimeout bounds a single upload request.
const DefaultTimeout = 60 * time.Second

// Payload is a blob or JSON document to upload.
type Payload struct {
	Kind        Kind
	Filename    string
	ContentType string // defaults by kind
	Data        []byte
}

// Uploader uploads payloads. Implementations make exactly one network call
// and never retry.
type Uploader interface {
	Upload(ctx context.Context, p Payload) (string, error)
}

// HTTPUploader posts multipart payloads to the upload endpoint.
type HTTPUploader struct {
	endpoint string
	client   *http.Client
}

// Option configures HTTPUploader.
type Option func(*HTTPUploader)

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(u *HTTPUploader) {
		u.client = client
	}
}

// NewHTTPUploader creates an uploader for the given endpoint URL.
func NewHTTPUploader(endpoint string, opts ...Option) *HTTPUploader {
	u := &HTTPUploader{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Compile-time interface check.
var _ Uploader = (*HTTPUploader)(nil)

// uploadResponse is the endpoint's JSON body for both success and failure.
type uploadResponse struct {
	IPFSURL string `json:"ipfsUrl"`
	Error   string `json:"error"`
	Detail  string `json:"detail"`
}

// Upload sends the payload and returns its ipfs:// locator.
func (u *HTTPUploader) Upload(ctx context.Context, p Payload) (locator string, err error) {
	start := time.Now()
	defer func() {
		observability.RecordUpload(string(p.Kind), time.Since(start).Seconds(), err)
	}()

	body, contentType, err := encodeMultipart(p)
	if err != nil {
		return "", fmt.Errorf("%w: encode form: %v", ErrUploadFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrUploadFailed, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: http request: %w", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrUploadFailed, err)
	}

	var decoded uploadResponse
	decodeErr := json.Unmarshal(respBody, &decoded)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && decoded.Error != "" {
			if decoded.Detail != "" {
				return "", fmt.Errorf("%w: status %d: %s: %s", ErrUploadFailed, resp.StatusCode, decoded.Error, decoded.Detail)
			}
			return "", fmt.Errorf("%w: status %d: %s", ErrUploadFailed, resp.StatusCode, decoded.Error)
		}
		return "", fmt.Errorf("%w: unexpected status %d", ErrUploadFailed, resp.StatusCode)
	}

	if decodeErr != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUploadFailed, decodeErr)
	}
	if decoded.IPFSURL == "" {
		return "", fmt.Errorf("%w: response missing ipfsUrl", ErrUploadFailed)
	}
	if _, err := ParseLocator(decoded.IPFSURL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	return decoded.IPFSURL, nil
}

// ParseLocator validates an ipfs:// locator and returns its CID.
func ParseLocator(locator string) (cid.Cid, error) {
	if !strings.HasPrefix(locator, LocatorScheme) {
		return cid.Undef, fmt.Errorf("locator %q: missing %s scheme", locator, LocatorScheme)
	}
	raw := strings.TrimPrefix(locator, LocatorScheme)
	// Allow a path below the root CID, e.g. ipfs://<cid>/image.png.
	if i := strings.IndexByte(raw, '/'); i >= 0 {
		raw = raw[:i]
	}
	c, err := cid.Decode(raw)
	if err != nil {
		return cid.Undef, fmt.Errorf("locator %q: invalid cid: %w", locator, err)
	}
	return c, nil
}

func encodeMultipart(p Payload) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := p.Filename
	if filename == "" {
		filename = "upload"
		if p.Kind == KindMetadata {
			filename = "metadata.json"
		}
	}

	contentType := p.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
		if p.Kind == KindMetadata {
			contentType = "application/json"
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(p.Data); err != nil {
		return nil, "", err
	}

	kind := p.Kind
	if kind == "" {
		kind = KindFile
	}
	if err := w.WriteField("type", string(kind)); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
