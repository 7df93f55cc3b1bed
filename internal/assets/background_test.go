package assets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smallest valid PNG signature plus IHDR chunk header
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func TestLoadBackgroundFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bg.png")
	require.NoError(t, os.WriteFile(path, pngBytes, 0o644))

	bg, err := LoadBackground(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "image/png", bg.MediaType)
	assert.True(t, strings.HasPrefix(bg.DataURI, "data:image/png;base64,"))
}

func TestLoadBackgroundErrorsAreReturned(t *testing.T) {
	_, err := LoadBackground(context.Background(), "")
	assert.Error(t, err)

	_, err = LoadBackground(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"))
	assert.ErrorContains(t, err, "open background")

	text := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(text, []byte("hello"), 0o644))
	_, err = LoadBackground(context.Background(), text)
	assert.ErrorContains(t, err, "not an image")
}

func TestLoadBackgroundFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bg.png" {
			http.NotFound(w, r)
			return
		}
		w.Write(pngBytes)
	}))
	defer srv.Close()

	bg, err := LoadBackground(context.Background(), srv.URL+"/bg.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", bg.MediaType)

	_, err = LoadBackground(context.Background(), srv.URL+"/other.png")
	assert.ErrorContains(t, err, "HTTP 404")
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com/a.jpg"))
	assert.True(t, IsURL(" www.example.com/a.jpg"))
	assert.False(t, IsURL("pozadina.jpg"))
}
