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
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	walked, err := json.Marshal(Document{
		"Raw_Filesystem": Directory{
			"home": Directory{"user": Directory{
				"notes.txt": fixtureFile(5).SetContent("hello"),
				"big.iso":   &File{Size: 200000000, Modified: "2020-04-01T12:30:00.000Z", SHA256: HashSkipped},
				"bad.bin":   &File{Size: 1, Modified: "2020-04-01T12:30:00.000Z", SHA256: HashError},
				"ok.bin":    &File{Size: 5, Modified: "2020-04-01T12:30:00.000Z", SHA256: helloDigest},
				"empty":     MarkerEmpty,
			}},
			"proc": MarkerNoise,
			"root": MarkerDenied,
		},
	})
	require.NoError(t, err)

	tests := []struct {
		name      string
		doc       string
		wantFlaws bool
		wantText  string
	}{
		{"catalog", string(walked), false, ""},
		{"empty", `{}`, false, ""},
		{"unknown marker", `{"v": {"x": "deleted"}}`, true, ""},
		{"volume is no directory", `{"v": "ignored_os_noise"}`, true, ""},
		{"negative size", `{"v": {"f": {"size": -1, "modified": "2020-04-01T12:30:00.000Z"}}}`, true, ""},
		{"bad time", `{"v": {"f": {"size": 1, "modified": "yesterday"}}}`, true, ""},
		{"unknown field", `{"v": {"f": {"size": 1, "modified": "2020-04-01T12:30:00.000Z", "owner": "root"}}}`, true, ""},
		{"bad digest", `{"v": {"d": {"f": {"size": 1, "modified": "2020-04-01T12:30:00.000Z", "sha256": "abc"}}}}`, true, `v/d/f: invalid sha256 "abc"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flaws, err := Validate(context.Background(), []byte(tt.doc))
			require.NoError(t, err)
			if !tt.wantFlaws {
				assert.Empty(t, flaws)
				return
			}
			require.NotEmpty(t, flaws)
			assert.Contains(t, strings.Join(flaws, "\n"), tt.wantText)
		})
	}
}

func TestValidate_NoJSON(t *testing.T) {
	_, err := Validate(context.Background(), []byte(`{"v": `))
	assert.Error(t, err)
}
