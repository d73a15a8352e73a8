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

// Package spooled provides a buffer that keeps small content in memory and
// moves to a temporary file once it grows beyond a limit.
package spooled

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"os"
)

// TemporaryFile is written first and read afterwards. The first Read
// rewinds to the start of the content.
type TemporaryFile struct {
	size       int64
	maxSize    int64
	dir        string
	buffer     *bytes.Buffer
	tempFile   *os.File
	rolledOver bool
	reading    bool
}

// New creates a TemporaryFile that rolls over into dir when more than
// maxSize bytes are written. An empty dir uses the default temp directory.
func New(maxSize int64, dir string) (*TemporaryFile, func() error) {
	t := &TemporaryFile{buffer: &bytes.Buffer{}, maxSize: maxSize, dir: dir}
	return t, t.Close
}

func (t *TemporaryFile) Read(p []byte) (n int, err error) {
	if t.rolledOver {
		if !t.reading {
			if _, err := t.tempFile.Seek(0, io.SeekStart); err != nil {
				return 0, err
			}
			t.reading = true
		}
		return t.tempFile.Read(p)
	}
	t.reading = true
	return t.buffer.Read(p)
}

func (t *TemporaryFile) Write(p []byte) (n int, err error) {
	if t.reading {
		return 0, fmt.Errorf("write after read")
	}
	t.size += int64(len(p))

	if t.rolledOver {
		return t.tempFile.Write(p)
	}

	if t.size > t.maxSize {
		err := t.Rollover()
		if err != nil {
			return 0, err
		}
		return t.tempFile.Write(p)
	}

	return t.buffer.Write(p)
}

// Rollover moves the buffered content into a temporary file.
func (t *TemporaryFile) Rollover() (err error) {
	if t.rolledOver {
		return nil
	}
	t.tempFile, err = ioutil.TempFile(t.dir, "spool")
	if err != nil {
		return fmt.Errorf("could not create tmp file: %w", err)
	}
	t.rolledOver = true
	_, err = io.Copy(t.tempFile, t.buffer)
	if err != nil {
		return fmt.Errorf("could not fill tmp file: %w", err)
	}
	t.buffer.Reset()
	return nil
}

func (t *TemporaryFile) Close() error {
	if t.rolledOver {
		err := t.tempFile.Close()
		if err != nil {
			return err
		}
		t.rolledOver = false
		return os.Remove(t.tempFile.Name())
	}
	t.buffer.Reset()
	return nil
}

// Size returns the number of bytes written.
func (t *TemporaryFile) Size() int64 {
	return t.size
}
