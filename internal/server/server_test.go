package server

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thumbgen/internal/sign"
	"thumbgen/internal/thumbnails"
)

func TestHealthz(t *testing.T) {
	req, err := http.NewRequest("GET", "/healthz", nil)
	assert.NoError(t, err)

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(healthz)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name         string
		token        string
		header       string
		expectedCode int
	}{
		{
			name:         "valid token",
			token:        "secret",
			header:       "Bearer secret",
			expectedCode: http.StatusOK,
		},
		{
			name:         "invalid token",
			token:        "secret",
			header:       "Bearer wrong",
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:         "no header",
			token:        "secret",
			header:       "",
			expectedCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest("GET", "/", nil)
			assert.NoError(t, err)
			req.Header.Set("Authorization", tt.header)

			rr := httptest.NewRecorder()
			handler := auth(tt.token, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedCode, rr.Code)
		})
	}
}

func testPNGBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: 10, G: 200, B: 30, A: 255}), image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDownloadFile(t *testing.T) {
	dir := t.TempDir()
	signer := sign.New("test-secret", time.Hour, dir, true)

	fileName := "export_a.png"
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), testPNGBytes(t), 0644))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/download/{file_name}", downloadFile(signer))

	t.Run("valid token serves file", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest("GET", signer.Issue(fileName), nil)
		mux.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
		assert.Equal(t, testPNGBytes(t), rr.Body.Bytes())
	})

	t.Run("missing expires", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/download/"+fileName+"?signature=abc", nil)
		mux.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("tampered signature", func(t *testing.T) {
		issued, err := url.Parse(signer.Issue(fileName))
		require.NoError(t, err)
		q := issued.Query()
		q.Set("signature", "deadbeef"+q.Get("signature")[8:])
		issued.RawQuery = q.Encode()

		rr := httptest.NewRecorder()
		req := httptest.NewRequest("GET", issued.String(), nil)
		mux.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		expired := sign.New("test-secret", -time.Hour, dir, true)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest("GET", expired.Issue(fileName), nil)
		mux.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("path traversal", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/download/..%2Fsecret.txt?expires=9999999999&signature=abc", nil)
		mux.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("missing file", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest("GET", signer.Issue("export_gone.png"), nil)
		mux.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestAllFailed(t *testing.T) {
	exports := thumbnails.ExportSet{"png": thumbnails.ExportRecord{}}

	assert.False(t, allFailed(nil))
	assert.True(t, allFailed([]thumbnails.VariationResult{{Error: "generation failed"}}))
	assert.False(t, allFailed([]thumbnails.VariationResult{
		{Error: "generation failed"},
		{Exports: exports},
	}))
}
