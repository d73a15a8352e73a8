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
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const (
	rawLabel       = "Raw_Filesystem"
	forcedFATLabel = "Raw_Filesystem_FAT32_Forced"
)

// Volume is a mounted filesystem of a Source.
type Volume struct {
	Offset int64
	Label  string
	Type   Type
	FS     afero.Fs
}

// Label names the volume of a partition, e.g. Partition_2_Linux_(0x83).
func Label(p Partition) string {
	return fmt.Sprintf("Partition_%d_%s", p.Index, strings.ReplaceAll(p.Description, " ", "_"))
}

// Enumerate mounts the volumes of src and calls fn for each, in partition
// table order. Volumes that cannot be detected or mounted are logged and
// skipped. fn returns false to stop the enumeration.
//
// Without a partition table the whole source is mounted as one volume. If
// its type cannot be detected, a FAT32 mount is forced as a last resort.
func Enumerate(src Source, logger logrus.FieldLogger, fn func(Volume) bool) {
	partitions, err := src.Partitions()
	if err == nil {
		logger.Infof("[Volume] Partition table found on %s", src.Name())
		for _, p := range partitions {
			if !p.Allocated {
				continue
			}
			v, ok := mount(src, logger, p.Offset, Label(p))
			if ok && !fn(v) {
				return
			}
		}
		return
	}

	logger.WithError(err).Infof("[Volume] No partition table found on %s, trying raw filesystem", src.Name())

	if v, ok := mount(src, logger, 0, rawLabel); ok {
		fn(v)
		return
	}

	logger.Warningln("[Override] Forcing mount as FAT32")
	fs, err := src.Mount(0, TypeFAT32)
	if err != nil {
		logger.WithError(err).Errorln("Manual FAT override failed, no filesystem could be mounted")
		return
	}
	fn(Volume{Offset: 0, Label: forcedFATLabel, Type: TypeFAT32, FS: fs})
}

func mount(src Source, logger logrus.FieldLogger, offset int64, label string) (Volume, bool) {
	log := logger.WithField("volume", label)

	t, err := src.Detect(offset)
	if err != nil {
		log.WithError(err).Errorf("Automatic detection failed at offset %d", offset)
		return Volume{}, false
	}
	log.Infof("[Detect] %s detected as %s", label, t)

	fs, err := src.Mount(offset, t)
	if err != nil {
		log.WithError(err).Errorf("Could not mount %s", t)
		return Volume{}, false
	}
	return Volume{Offset: offset, Label: label, Type: t, FS: fs}, true
}
