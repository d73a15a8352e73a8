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
	"strings"
	"sync"

	"github.com/diskfs/go-diskfs/partition/gpt"
	"github.com/diskfs/go-diskfs/partition/mbr"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

var mbrTypes = map[byte]string{ // nolint:gochecknoglobals
	0x01: "DOS FAT12",
	0x04: "DOS FAT16",
	0x06: "DOS FAT16",
	0x07: "NTFS / exFAT",
	0x0b: "Win95 FAT32",
	0x0c: "Win95 FAT32",
	0x0e: "Win95 FAT16",
	0x82: "Linux Swap / Solaris x86",
	0x83: "Linux",
	0x8e: "Linux Logical Volume Manager",
	0xa5: "FreeBSD",
	0xaf: "Mac OS X HFS",
	0xef: "EFI System",
}

// container entries hold other partitions and are not filesystems
var mbrContainers = map[byte]bool{0x05: true, 0x0f: true, 0x85: true, 0xee: true} // nolint:gochecknoglobals

// ImageSource is a raw disk image.
type ImageSource struct {
	img *Image

	mu    sync.Mutex
	sizes map[int64]int64
}

// OpenImage opens a raw image made of the given segments.
func OpenImage(segments ...string) (*ImageSource, error) {
	img, err := NewImage(segments...)
	if err != nil {
		return nil, err
	}
	return &ImageSource{img: img, sizes: map[int64]int64{}}, nil
}

func (s *ImageSource) Name() string {
	return s.img.name
}

// Partitions reads a GPT or an MBR partition table.
func (s *ImageSource) Partitions() ([]Partition, error) {
	file := newReaderFile(s.img, s.img.Size())

	var partitions []Partition
	if table, err := gpt.Read(file, sectorSize, sectorSize); err == nil {
		partitions = gptPartitions(table)
	} else {
		table, err := mbr.Read(file, sectorSize, sectorSize)
		if err != nil {
			return nil, ErrNoVolumeSystem
		}

		// a volume boot record also ends with 0x55AA
		boot := make([]byte, sectorSize)
		if _, err := s.img.ReadAt(boot, 0); err != nil && err != io.EOF {
			return nil, err
		}
		if _, ok := bootSectorType(boot); ok {
			return nil, ErrNoVolumeSystem
		}
		partitions = mbrPartitions(table)
	}

	for i := range partitions {
		p := &partitions[i]
		if p.Offset <= 0 || p.Size <= 0 || p.Offset+p.Size > s.img.Size() {
			p.Allocated = false
		}
	}

	allocated := 0
	s.mu.Lock()
	for _, p := range partitions {
		if p.Allocated {
			s.sizes[p.Offset] = p.Size
			allocated++
		}
	}
	s.mu.Unlock()
	if allocated == 0 {
		return nil, ErrNoVolumeSystem
	}
	return partitions, nil
}

func mbrPartitions(table *mbr.Table) []Partition {
	var partitions []Partition
	for i, p := range table.Partitions {
		if p == nil || p.Type == 0 || p.Size == 0 {
			continue
		}
		t := byte(p.Type)
		name, ok := mbrTypes[t]
		if !ok {
			name = "Unknown Type"
		}
		partitions = append(partitions, Partition{
			Index:       i + 1,
			Offset:      int64(p.Start) * sectorSize,
			Size:        int64(p.Size) * sectorSize,
			Description: fmt.Sprintf("%s (0x%02x)", name, t),
			Allocated:   !mbrContainers[t],
		})
	}
	return partitions
}

func gptPartitions(table *gpt.Table) []Partition {
	var partitions []Partition
	for i, p := range table.Partitions {
		if p == nil || p.Type == gpt.Unused || p.End < p.Start {
			continue
		}
		description := strings.TrimSpace(p.Name)
		if description == "" {
			description = string(p.Type)
		}
		partitions = append(partitions, Partition{
			Index:       i + 1,
			Offset:      int64(p.Start) * sectorSize,
			Size:        int64(p.End-p.Start+1) * sectorSize,
			Description: description,
			Allocated:   true,
		})
	}
	return partitions
}

func (s *ImageSource) Detect(offset int64) (Type, error) {
	return Detect(s.img, offset)
}

// Mount opens the filesystem at offset. It is bounded by the partition
// that starts there, or by the end of the image.
func (s *ImageSource) Mount(offset int64, t Type) (afero.Fs, error) {
	s.mu.Lock()
	size, ok := s.sizes[offset]
	s.mu.Unlock()
	if !ok {
		size = s.img.Size() - offset
	}
	if size <= 0 {
		return nil, errors.Errorf("offset %d beyond end of image", offset)
	}
	return mountDisk(s.img, offset, size, t)
}

func (s *ImageSource) Close() error {
	return s.img.Close()
}

// readerFile lets the disk libraries read from an io.ReaderAt.
type readerFile struct {
	r    io.ReaderAt
	size int64
	pos  int64
}

func newReaderFile(r io.ReaderAt, size int64) *readerFile {
	return &readerFile{r: r, size: size}
}

func (f *readerFile) ReadAt(p []byte, off int64) (int, error) {
	return f.r.ReadAt(p, off)
}

func (f *readerFile) WriteAt(p []byte, off int64) (int, error) {
	return 0, &os.PathError{Op: "write", Path: "image", Err: os.ErrPermission}
}

func (f *readerFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += f.pos
	case io.SeekEnd:
		offset += f.size
	default:
		return 0, os.ErrInvalid
	}
	if offset < 0 {
		return 0, os.ErrInvalid
	}
	f.pos = offset
	return offset, nil
}
