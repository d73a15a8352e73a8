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

// Package fscatalog builds a catalog of the files on forensic disk images.
//
// The catalog
//
// A catalog is a JSON document with one tree per volume of the image:
//     {
//       "Partition_1_Linux_(0x83)": {
//         "etc": {"hostname": {"size": 12, "modified": "2020-01-01T10:00:00.000Z"}},
//         "home": {"user": {"notes.txt": {"size": 5, "modified": "...", "content": "hello"}}},
//         "proc": "ignored_os_noise",
//         "root": "access_denied"
//       }
//     }
// Directories are objects, regular files are records with size and
// modification time, optionally a SHA-256 digest and the text content.
// Markers stand in for directories that were ignored or could not be
// listed and for empty files.
//
// Walking
//
// An Engine enumerates the volumes of a volume.Source and walks each one
// with a Walker. Operating system directories like proc or usr/lib are
// recorded as markers instead of being descended, unless a Filter marks
// them as vital. A session.Store records every completed directory, so an
// interrupted run can be resumed without walking them again.
//
// Output
//
// WriteDocument writes a catalog in one or more files, MergeDocuments joins
// them again, Validate checks a catalog and ExportElements stores it in an
// element database.
package fscatalog
