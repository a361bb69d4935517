// Package testutil provides shared test fixtures: synthetic frames, encoded
// images and multipart uploads.
package testutil

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// Frame returns a w x h image with a single red pixel at the origin so
// encoders cannot collapse it to a trivial palette.
func Frame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	return img
}

// EncodePNG encodes img as PNG.
func EncodePNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// WriteFrames writes n PNG frames named frame_000.png, frame_001.png, ...
// into dir and returns their paths in order.
func WriteFrames(t testing.TB, dir string, n, w, h int) []string {
	t.Helper()
	data := EncodePNG(t, Frame(w, h))
	paths := make([]string, n)
	for i := range paths {
		paths[i] = filepath.Join(dir, fmt.Sprintf("frame_%03d.png", i))
		if err := os.WriteFile(paths[i], data, 0o644); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}
	return paths
}

// MultipartUpload builds a request that uploads data as the file field
// named field.
func MultipartUpload(t testing.TB, target, field, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}
