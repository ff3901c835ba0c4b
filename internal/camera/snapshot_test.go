package camera

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotSource_Capture(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 6))))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/snapshot.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	src := NewSnapshotSource(srv.URL+"/snapshot.png", time.Second, nil)
	assert.True(t, src.Available())
	img, err := src.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, image.Pt(8, 6), img.Bounds().Size())

	_, err = NewSnapshotSource(srv.URL+"/missing", time.Second, nil).Capture(context.Background())
	assert.ErrorIs(t, err, ErrNoFrame)
	require.NoError(t, src.Close())
}
