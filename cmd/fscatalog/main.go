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

// Package fscatalog implements the fscatalog command line tool. It
// catalogs the files of disk images and handles the resulting catalogs.
//     catalog   Catalog a disk image, split image, archive or directory
//     merge     Merge catalogs, e.g. the chunks of a split catalog
//     validate  Validate catalogs
//     element   Query a catalog stored as forensicstore
//     pack      Add files to an SQLite archive
//     unpack    Extract files from an SQLite archive
//     ls        List files in an SQLite archive
//
// Usage
//
// Catalog a disk image, hash all files and capture text files
//     fscatalog catalog --out disk.json --hash --read txt,conf,log disk.dd
// Continue an interrupted run
//     fscatalog catalog --out disk.json --resume disk.dd
// Store the catalog as forensicstore and query it
//     fscatalog catalog --out disk.forensicstore --format forensicstore disk.001
//     fscatalog element select file disk.forensicstore
// Join split catalogs
//     fscatalog merge --out full.json disk.json disk_001.json disk_002.json
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forensicanalysis/fscatalog/cmd"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fscatalog",
		Short: "Catalog the files of disk images",
	}
	rootCmd.AddCommand(cmd.Catalog(), cmd.Merge(), cmd.Validate(), cmd.Element(), cmd.Pack(), cmd.Unpack(), cmd.Ls())
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}
