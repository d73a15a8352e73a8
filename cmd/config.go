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
	"encoding/json"
	"io/ioutil"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/forensicanalysis/fscatalog"
)

const envPrefix = "FSCATALOG"

// Output formats of the catalog command.
const (
	FormatJSON          = "json"
	FormatForensicstore = "forensicstore"
)

// Config holds the options of a catalog run. Values are read from the
// defaults, a JSON config file, FSCATALOG_* environment variables and the
// command line, later sources overriding earlier ones.
type Config struct {
	Output     string   `json:"output"`
	Resume     bool     `json:"resume"`
	Hash       bool     `json:"hash"`
	Read       string   `json:"read"`
	NoFilter   bool     `json:"no_filter" split_words:"true"`
	Verbose    bool     `json:"verbose"`
	SplitItems int      `json:"split_items" split_words:"true"`
	Format     string   `json:"format"`
	Vital      []string `json:"vital"`
	Noise      []string `json:"noise"`
}

func defaultConfig() Config {
	return Config{SplitItems: fscatalog.DefaultSplitItems, Format: FormatJSON}
}

func (c *Config) addFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&c.Output, "out", "o", c.Output, "output path of the catalog, base name for split catalogs")
	flags.BoolVar(&c.Resume, "resume", c.Resume, "record completed directories and skip them when run again")
	flags.BoolVar(&c.Hash, "hash", c.Hash, "calculate SHA-256 hashes")
	flags.StringVarP(&c.Read, "read", "r", c.Read, "extensions of files whose content is captured, e.g. 'txt,conf'")
	flags.BoolVar(&c.NoFilter, "no-filter", c.NoFilter, "catalog operating system directories as well")
	flags.BoolVarP(&c.Verbose, "verbose", "v", c.Verbose, "log every path")
	flags.IntVar(&c.SplitItems, "split-items", c.SplitItems, "split the catalog every N items, 0 disables splitting")
	flags.StringVar(&c.Format, "format", c.Format, "output format: json or forensicstore")
	flags.StringSliceVar(&c.Vital, "vital", c.Vital, "additional directories that are always cataloged")
	flags.StringSliceVar(&c.Noise, "noise", c.Noise, "additional directories that are not descended")
}

// loadConfig layers the config file and the environment below the flags
// that were set explicitly.
func loadConfig(flags *pflag.FlagSet, fromFlags Config, configFile string) (Config, error) {
	config := defaultConfig()

	if configFile != "" {
		b, err := ioutil.ReadFile(configFile) // #nosec
		if err != nil {
			return config, errors.Wrap(err, "could not read config file")
		}
		if err := json.Unmarshal(b, &config); err != nil {
			return config, errors.Wrapf(err, "could not parse config file %s", configFile)
		}
	}

	if err := envconfig.Process(envPrefix, &config); err != nil {
		return config, errors.Wrap(err, "could not read environment")
	}

	if flags.Changed("out") {
		config.Output = fromFlags.Output
	}
	if flags.Changed("resume") {
		config.Resume = fromFlags.Resume
	}
	if flags.Changed("hash") {
		config.Hash = fromFlags.Hash
	}
	if flags.Changed("read") {
		config.Read = fromFlags.Read
	}
	if flags.Changed("no-filter") {
		config.NoFilter = fromFlags.NoFilter
	}
	if flags.Changed("verbose") {
		config.Verbose = fromFlags.Verbose
	}
	if flags.Changed("split-items") {
		config.SplitItems = fromFlags.SplitItems
	}
	if flags.Changed("format") {
		config.Format = fromFlags.Format
	}
	if flags.Changed("vital") {
		config.Vital = fromFlags.Vital
	}
	if flags.Changed("noise") {
		config.Noise = fromFlags.Noise
	}
	return config, config.validate()
}

func (c *Config) validate() error {
	if c.Output == "" {
		return errors.New("output path required (--out)")
	}
	c.Format = strings.ToLower(c.Format)
	if c.Format != FormatJSON && c.Format != FormatForensicstore {
		return errors.Errorf("unknown format %q", c.Format)
	}
	return nil
}

func (c *Config) filter() *fscatalog.Filter {
	if c.NoFilter {
		return fscatalog.NewFilter(false)
	}
	if len(c.Vital) > 0 || len(c.Noise) > 0 {
		return fscatalog.NewCustomFilter(c.Vital, c.Noise)
	}
	return fscatalog.NewFilter(true)
}
