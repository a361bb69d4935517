// Package framesource reads still images as an ordered frame sequence.
package framesource

import (
	"context"
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	// Decoders for the formats a frame directory may hold.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Extensions lists the file extensions treated as frames, lower case.
var Extensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

func isFrame(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Decode decodes an image in any supported format.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// DirSource yields the image files of one directory in lexical name order.
// Sub-directories and files with other extensions are ignored.
type DirSource struct {
	fsys  fs.FS
	dir   string
	names []string
	next  int
}

// OpenDir returns a source over the images in dir.
func OpenDir(dir string) (*DirSource, error) {
	return NewFSSource(os.DirFS(dir), ".")
}

// NewFSSource returns a source over the images in dir of fsys.
func NewFSSource(fsys fs.FS, dir string) (*DirSource, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read frame directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !isFrame(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return &DirSource{fsys: fsys, dir: dir, names: names}, nil
}

// Len returns the number of frames in the source.
func (s *DirSource) Len() int {
	return len(s.names)
}

// Names returns the frame file names in playback order.
func (s *DirSource) Names() []string {
	return append([]string(nil), s.names...)
}

// Next decodes the next frame. It returns io.EOF after the last one.
func (s *DirSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.names) {
		return nil, io.EOF
	}
	name := s.names[s.next]
	s.next++

	f, err := s.fsys.Open(path.Join(s.dir, name))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return img, nil
}

// Rewind restarts the sequence from the first frame.
func (s *DirSource) Rewind() {
	s.next = 0
}
