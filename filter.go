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
	"strings"
)

// Class is the evidentiary classification of a path.
type Class int

const (
	// Normal paths are cataloged.
	Normal Class = iota
	// Vital paths are always cataloged, even below a noise prefix.
	Vital
	// Noise paths are recorded as a marker or omitted.
	Noise
)

func (c Class) String() string {
	switch c {
	case Vital:
		return "vital"
	case Noise:
		return "noise"
	default:
		return "normal"
	}
}

var vitalDirectories = []string{ // nolint:gochecknoglobals
	"home", "root", "etc", "var/log", "var/www", "opt", "srv",
	"Users", "Documents and Settings", "ProgramData", "Inetpub", "Program Files",
}

var noiseDirectories = []string{ // nolint:gochecknoglobals
	"proc", "sys", "dev", "run", "tmp", "snap",
	"usr/lib", "usr/share", "usr/src", "usr/include",
	"var/lib", "var/cache", "var/backups", "lib", "lib64", "boot",
}

// Filter classifies paths into vital, noise and normal regions.
type Filter struct {
	disabled bool
	vital    []string
	noise    []string
}

// NewFilter returns the default filter. A disabled filter classifies
// every path as Normal.
func NewFilter(enabled bool) *Filter {
	return &Filter{disabled: !enabled, vital: vitalDirectories, noise: noiseDirectories}
}

// NewCustomFilter returns an enabled filter that extends the default lists.
func NewCustomFilter(vital, noise []string) *Filter {
	f := NewFilter(true)
	f.vital = append(append([]string{}, vitalDirectories...), trimAll(vital)...)
	f.noise = append(append([]string{}, noiseDirectories...), trimAll(noise)...)
	return f
}

func trimAll(dirs []string) []string {
	var trimmed []string
	for _, dir := range dirs {
		dir = strings.Trim(strings.ReplaceAll(dir, "\\", "/"), "/")
		if dir != "" {
			trimmed = append(trimmed, dir)
		}
	}
	return trimmed
}

// Classify returns the class of a volume relative path. The vital check
// takes precedence over the noise check.
func (f *Filter) Classify(p string) Class {
	if f == nil || f.disabled {
		return Normal
	}
	clean := strings.TrimLeft(strings.ReplaceAll(p, "\\", "/"), "/")
	for _, v := range f.vital {
		if under(clean, v) {
			return Vital
		}
	}
	for _, n := range f.noise {
		if under(clean, n) {
			return Noise
		}
	}
	return Normal
}

func under(p, prefix string) bool {
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}
