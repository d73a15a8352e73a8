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

package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/fscatalog/sqlitefs"
)

// Pack is the fscatalog pack commandline subcommand. The archive can be
// cataloged like a disk image.
func Pack() *cobra.Command {
	return &cobra.Command{
		Use:   "pack <archive> <file>...",
		Short: "Add files to an SQLite archive",
		Args:  cobra.MinimumNArgs(2), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			srcFS := afero.NewOsFs()
			destFS, err := sqlitefs.New(args[0])
			if err != nil {
				return err
			}
			defer destFS.Close()

			for _, arg := range args[1:] {
				fmt.Println("pack", filepath.ToSlash(arg))
				err = copyItem(srcFS, destFS, arg, filepath.ToSlash(arg))
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// Unpack is the fscatalog unpack commandline subcommand
func Unpack() *cobra.Command {
	var mode string
	var dest string
	unpackCmd := &cobra.Command{
		Use:   "unpack <archive>",
		Short: "Extract files from an SQLite archive",
		Args:  cobra.ExactArgs(1), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			srcFS, err := sqlitefs.Open(args[0])
			if err != nil {
				return err
			}
			defer srcFS.Close()

			destFS := afero.NewBasePathFs(afero.NewOsFs(), dest)

			return afero.Walk(srcFS, "/", func(srcPath string, info os.FileInfo, err error) error {
				if err != nil {
					log.Println(err)
				}
				if err != nil || info == nil || info.IsDir() {
					return nil
				}

				fullPath := filepath.ToSlash(srcPath)
				target := destinationPath(fullPath, mode)
				fmt.Printf("unpack '%s' to '%s'\n", fullPath, target)
				return copyItem(srcFS, destFS, fullPath, target)
			})
		},
	}

	usage := `define the export filename and folder structure. can be one of:
folder (e.g. 'home/user/.config/app/settings.json')
compact (e.g. 'home_user_.con_app_settings.json')
basename (e.g. 'settings.json')
`
	unpackCmd.Flags().StringVar(&mode, "mode", "folder", usage)
	unpackCmd.Flags().StringVarP(&dest, "out", "o", ".", "destination directory")
	return unpackCmd
}

// Ls is the fscatalog ls commandline subcommand
func Ls() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <archive> [pattern]",
		Short: "List files in an SQLite archive",
		Long:  "List files in an SQLite archive. The optional pattern supports ** globs, e.g. 'home/**/*.txt'.",
		Args:  cobra.RangeArgs(1, 2), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := ""
			if len(args) == 2 {
				pattern = strings.TrimLeft(args[1], "/")
				if !doublestar.ValidatePattern(pattern) {
					return fmt.Errorf("invalid pattern %q", args[1])
				}
			}

			fs, err := sqlitefs.Open(args[0])
			if err != nil {
				return err
			}
			defer fs.Close()

			return afero.Walk(fs, "/", func(p string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				p = filepath.ToSlash(p)
				if pattern != "" {
					if ok, _ := doublestar.Match(pattern, strings.TrimLeft(p, "/")); !ok {
						return nil
					}
				}
				fmt.Println(p)
				return nil
			})
		},
	}
}

func copyItem(srcFS, destFS afero.Fs, srcPath, destPath string) error {
	return afero.Walk(srcFS, srcPath, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(filepath.ToSlash(p), filepath.ToSlash(srcPath))
		target := path.Join("/", destPath, rel)
		if info.IsDir() {
			return destFS.MkdirAll(target, 0750)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(srcFS, destFS, p, target)
	})
}

func copyFile(srcFS, destFS afero.Fs, srcPath, destPath string) error {
	src, err := srcFS.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := destFS.MkdirAll(path.Dir(destPath), 0750); err != nil {
		return err
	}
	dest, err := destFS.Create(destPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dest, src); err != nil {
		dest.Close()
		return err
	}
	return dest.Close()
}

func destinationPath(fullPath string, mode string) string {
	switch mode {
	case "basename":
		return path.Base(fullPath)
	case "compact":
		return normalizeFilePath(fullPath)
	default:
		return strings.TrimLeft(fullPath, "/")
	}
}

func first(s string, n int) string {
	if len(s) < n {
		n = len(s)
	}
	return s[:n]
}

func last(s string, n int) string {
	if len(s) < n {
		n = len(s)
	}
	return s[len(s)-n:]
}

func splitExt(filePath string) (nameOnly, ext string) {
	ext = path.Ext(filePath)
	nameOnly = filePath[:len(filePath)-len(ext)]
	return nameOnly, ext
}

// normalizeFilePath flattens a path into a file name of at most 64
// characters.
func normalizeFilePath(filePath string) string {
	maxLength := 64
	maxSegmentLength := 4
	filePath = strings.TrimLeft(filePath, "/")
	pathSegments := strings.Split(filePath, "/")
	normalizedFilePath := strings.Join(pathSegments, "_")

	// get first 4 letters of every directory, while longer than maxLength
	for i := 0; i < len(pathSegments)-1 && len(normalizedFilePath) > maxLength; i++ {
		pathSegments[i] = first(pathSegments[i], maxSegmentLength)
		normalizedFilePath = strings.Join(pathSegments, "_")
	}

	if len(normalizedFilePath) > maxLength {
		// if still to long get first maxSegmentLength letters of filename + extension
		nameOnly, ext := splitExt(pathSegments[len(pathSegments)-1])
		pathSegments[len(pathSegments)-1] = first(nameOnly, maxSegmentLength) + ext
		normalizedFilePath = strings.Join(pathSegments, "_")
	}

	return last(normalizedFilePath, maxLength)
}
