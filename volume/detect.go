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
	"bytes"
	"encoding/binary"
	"io"
)

const (
	sectorSize    = 512
	extMagic      = 0xEF53
	isoDescriptor = 32769
)

// Detect identifies the filesystem that starts at offset by its magic
// values.
func Detect(r io.ReaderAt, offset int64) (Type, error) {
	boot := make([]byte, sectorSize)
	if _, err := r.ReadAt(boot, offset); err != nil && err != io.EOF {
		return "", err
	}
	if t, ok := bootSectorType(boot); ok {
		return t, nil
	}

	magic := make([]byte, 2)
	if _, err := r.ReadAt(magic, offset+1024+56); err == nil && binary.LittleEndian.Uint16(magic) == extMagic {
		return TypeExt, nil
	}

	iso := make([]byte, 5)
	if _, err := r.ReadAt(iso, offset+isoDescriptor); err == nil && string(iso) == "CD001" {
		return TypeISO9660, nil
	}
	return "", ErrUnknownFilesystem
}

// bootSectorType reads the OEM and filesystem type strings of a FAT, exFAT
// or NTFS boot sector.
func bootSectorType(boot []byte) (Type, bool) {
	if len(boot) < sectorSize {
		return "", false
	}
	switch {
	case bytes.Equal(boot[3:11], []byte("NTFS    ")):
		return TypeNTFS, true
	case bytes.Equal(boot[3:11], []byte("EXFAT   ")):
		return TypeExFAT, true
	case bytes.Equal(boot[82:90], []byte("FAT32   ")):
		return TypeFAT32, true
	case bytes.Equal(boot[54:62], []byte("FAT16   ")):
		return TypeFAT16, true
	case bytes.Equal(boot[54:62], []byte("FAT12   ")):
		return TypeFAT12, true
	}
	return "", false
}
