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

package fscatalog

import (
	"fmt"
	"io"

	"github.com/minio/sha256-simd"
)

const (
	// MaxHashSize is the largest file that gets hashed.
	MaxHashSize = 100 * 1024 * 1024
	hashChunk   = 1024 * 1024

	// HashSkipped replaces the digest of files above MaxHashSize.
	HashSkipped = "skipped-too-large"
	// HashError replaces the digest when the file could not be read.
	HashError = "hash-error"
)

// HashContent returns the hex SHA-256 of the first declaredSize bytes of r.
// Sources that end early are hashed up to their end.
func HashContent(r io.Reader, declaredSize int64) string {
	if declaredSize > MaxHashSize {
		return HashSkipped
	}

	h := sha256.New()
	buf := make([]byte, hashChunk)
	if _, err := io.CopyBuffer(h, io.LimitReader(r, declaredSize), buf); err != nil {
		return HashError
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
