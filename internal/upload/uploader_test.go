package upload

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"puzzle-mint/internal/domain"
)

// testLocator returns a valid ipfs:// locator for data.
func testLocator(t *testing.T, data []byte) string {
	t.Helper()
	prefix := cid.Prefix{Version: 1, Codec: cid.Raw, MhType: 0x12, MhLength: -1}
	c, err := prefix.Sum(data)
	require.NoError(t, err)
	return LocatorScheme + c.String()
}

// uploadServer emulates the upload endpoint and records the last request.
type uploadServer struct {
	*httptest.Server
	kind     string
	filename string
	data     []byte
	calls    int
}

func newUploadServer(t *testing.T, handler func(w http.ResponseWriter, s *uploadServer)) *uploadServer {
	t.Helper()
	s := &uploadServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls++
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.kind = r.FormValue("type")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "file not found"})
			return
		}
		defer f.Close()
		s.filename = hdr.Filename
		s.data, _ = io.ReadAll(f)
		handler(w, s)
	}))
	t.Cleanup(s.Close)
	return s
}

func TestHTTPUploader_UploadFile(t *testing.T) {
	locator := testLocator(t, []byte("image"))
	srv := newUploadServer(t, func(w http.ResponseWriter, _ *uploadServer) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"ipfsUrl": locator})
	})

	u := NewHTTPUploader(srv.URL)
	got, err := u.Upload(context.Background(), Payload{
		Kind:     KindFile,
		Filename: "tsume-1.jpg",
		Data:     []byte("image"),
	})
	require.NoError(t, err)

	assert.Equal(t, locator, got)
	assert.Equal(t, "file", srv.kind)
	assert.Equal(t, "tsume-1.jpg", srv.filename)
	assert.Equal(t, []byte("image"), srv.data)
	assert.Equal(t, 1, srv.calls)
}

func TestHTTPUploader_ErrorResponses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{
			name:   "server error with detail",
			status: http.StatusInternalServerError,
			body:   `{"error":"upload failed","detail":"pinata unauthorized"}`,
			want:   "pinata unauthorized",
		},
		{
			name:   "bad request without body",
			status: http.StatusBadRequest,
			body:   ``,
			want:   "unexpected status 400",
		},
		{
			name:   "missing locator",
			status: http.StatusOK,
			body:   `{}`,
			want:   "missing ipfsUrl",
		},
		{
			name:   "malformed body",
			status: http.StatusOK,
			body:   `not json`,
			want:   "decode response",
		},
		{
			name:   "wrong scheme",
			status: http.StatusOK,
			body:   `{"ipfsUrl":"https://example.com/x"}`,
			want:   "missing ipfs:// scheme",
		},
		{
			name:   "invalid cid",
			status: http.StatusOK,
			body:   `{"ipfsUrl":"ipfs://not-a-cid"}`,
			want:   "invalid cid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newUploadServer(t, func(w http.ResponseWriter, _ *uploadServer) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			u := NewHTTPUploader(srv.URL)
			_, err := u.Upload(context.Background(), Payload{Kind: KindFile, Data: []byte("x")})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUploadFailed)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, 1, srv.calls, "uploader must not retry")
		})
	}
}

func TestHTTPUploader_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	u := NewHTTPUploader(url)
	_, err := u.Upload(context.Background(), Payload{Kind: KindFile, Data: []byte("x")})
	assert.ErrorIs(t, err, ErrUploadFailed)
}

func TestParseLocator(t *testing.T) {
	locator := testLocator(t, []byte("doc"))

	c, err := ParseLocator(locator)
	require.NoError(t, err)
	assert.Equal(t, locator, LocatorScheme+c.String())

	_, err = ParseLocator(locator + "/image.png")
	assert.NoError(t, err)
}

func TestMetadataBuilder_Build(t *testing.T) {
	locator := testLocator(t, []byte("metadata"))
	srv := newUploadServer(t, func(w http.ResponseWriter, _ *uploadServer) {
		json.NewEncoder(w).Encode(map[string]string{"ipfsUrl": locator})
	})

	b := NewMetadataBuilder(NewHTTPUploader(srv.URL))
	image := testLocator(t, []byte("image"))
	attrs := []domain.Attribute{{TraitType: "Difficulty", Value: "beginner"}}

	got, err := b.Build(context.Background(), "Tsume #1", "Head gold mate", image, attrs)
	require.NoError(t, err)
	assert.Equal(t, locator, got)
	assert.Equal(t, "metadata", srv.kind)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(srv.data, &doc))
	assert.Equal(t, "Tsume #1", doc["name"])
	assert.Equal(t, "Head gold mate", doc["description"])
	assert.Equal(t, image, doc["image"])

	gotAttrs, ok := doc["attributes"].([]interface{})
	require.True(t, ok)
	require.Len(t, gotAttrs, 1)
	assert.Equal(t, map[string]interface{}{"trait_type": "Difficulty", "value": "beginner"}, gotAttrs[0])
}

func TestMetadataBuilder_PropagatesUploadError(t *testing.T) {
	srv := newUploadServer(t, func(w http.ResponseWriter, _ *uploadServer) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	b := NewMetadataBuilder(NewHTTPUploader(srv.URL))
	_, err := b.Build(context.Background(), "n", "d", "ipfs://x", nil)
	assert.ErrorIs(t, err, ErrUploadFailed)
}

func TestCompose_EmptyAttributes(t *testing.T) {
	doc := Compose("n", "d", "ipfs://x", nil)
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"n","description":"d","image":"ipfs://x","attributes":[]}`, string(data))
}
