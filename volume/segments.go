// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

package volume

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
)

// Segments returns the consecutive segments of a split image, starting
// with first, which has to end in a three digit number.
func Segments(first string) ([]string, error) {
	m := segmentPattern.FindStringSubmatch(first)
	if m == nil {
		return []string{first}, nil
	}
	start, _ := strconv.Atoi(m[1])
	base := first[:len(first)-len(m[0])]

	dir, name := filepath.Split(base)
	if dir == "" {
		dir = "."
	}
	matches, err := doublestar.Glob(os.DirFS(dir), "*.[0-9][0-9][0-9]")
	if err != nil {
		return nil, err
	}

	numbered := map[int]string{}
	for _, match := range matches {
		sm := segmentPattern.FindStringSubmatch(match)
		if sm == nil || match[:len(match)-len(sm[0])] != name {
			continue
		}
		n, _ := strconv.Atoi(sm[1])
		numbered[n] = filepath.Join(dir, match)
	}

	var segments []string
	for n := start; ; n++ {
		segment, ok := numbered[n]
		if !ok {
			break
		}
		segments = append(segments, segment)
	}
	if len(segments) == 0 {
		return nil, errors.Wrap(os.ErrNotExist, first)
	}
	return segments, nil
}

type segment struct {
	file   *os.File
	offset int64
	size   int64
}

// Image is a read-only disk image made of one or more segment files.
type Image struct {
	name     string
	segments []segment
	size     int64
}

// NewImage joins the segment files in order.
func NewImage(paths ...string) (*Image, error) {
	if len(paths) == 0 {
		return nil, errors.New("no image segments")
	}
	img := &Image{name: paths[0]}
	for _, p := range paths {
		f, err := os.Open(p) // #nosec
		if err != nil {
			img.Close()
			return nil, err
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			img.Close()
			return nil, err
		}
		img.segments = append(img.segments, segment{file: f, offset: img.size, size: info.Size()})
		img.size += info.Size()
	}
	return img, nil
}

// Size is the total size of all segments.
func (img *Image) Size() int64 {
	return img.size
}

// ReadAt reads across segment boundaries.
func (img *Image) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= img.size {
		return 0, io.EOF
	}

	i := sort.Search(len(img.segments), func(i int) bool {
		return img.segments[i].offset+img.segments[i].size > off
	})

	n := 0
	for n < len(p) && i < len(img.segments) {
		s := img.segments[i]
		rel := off + int64(n) - s.offset
		want := len(p) - n
		if int64(want) > s.size-rel {
			want = int(s.size - rel)
		}
		read, err := s.file.ReadAt(p[n:n+want], rel)
		n += read
		if err != nil && err != io.EOF {
			return n, err
		}
		if read < want {
			return n, io.ErrUnexpectedEOF
		}
		i++
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (img *Image) Close() error {
	var first error
	for _, s := range img.segments {
		if err := s.file.Close(); err != nil && first == nil {
			first = err
		}
	}
	img.segments = nil
	return first
}
