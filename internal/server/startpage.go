// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package server

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/samber/oops"

	"github.com/simbridge/simbridge/internal/config"
)

// DefaultStartPage is used when config.xml names no content source.
const DefaultStartPage = "index.html"

// SimHostPage is the sim-host page, relative to the server root.
const SimHostPage = "simulator/index.html"

var contentSrc = regexp.MustCompile(`(?i)<content\s+src\s*=\s*"(.+)"\s*/>`)

// ParseStartPage reads the application's start page from
// <projectRoot>/config.xml.
func ParseStartPage(projectRoot string) (string, error) {
	path := filepath.Join(projectRoot, "config.xml")
	data, err := os.ReadFile(path) //nolint:gosec // path is under the configured project
	if errors.Is(err, fs.ErrNotExist) {
		return "", oops.Code(config.CodeInvalid).With("path", path).Errorf("cannot find project config file: %s", path)
	}
	if err != nil {
		return "", oops.Code(config.CodeInvalid).With("path", path).Wrapf(err, "read project config file")
	}
	if m := contentSrc.FindSubmatch(data); m != nil {
		return string(m[1]), nil
	}
	return DefaultStartPage, nil
}

// URLs are the pages a developer opens to run the simulation.
type URLs struct {
	App     string
	SimHost string
}

// HostURLs returns the app and sim-host URLs under urlRoot, which must end
// with a slash.
func HostURLs(urlRoot, startPage string) URLs {
	return URLs{
		App:     urlRoot + startPage,
		SimHost: urlRoot + SimHostPage,
	}
}
