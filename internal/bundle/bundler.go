// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package bundle

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/samber/oops"
)

// Module is a file exposed in the bundle under a fixed name.
type Module struct {
	File   string
	Expose string
}

// Replacement substitutes generated code for a marker in the entry script
// before it is bundled.
type Replacement struct {
	Marker string
	Code   string
}

// Request describes one artifact.
type Request struct {
	// Entry is the runtime skeleton executed when the bundle loads.
	Entry        string
	Replacements []Replacement
	Modules      []Module
	// OnFile is called with each file's path before the bundler reads it.
	// Returning an error aborts the bundle.
	OnFile func(path string) error
}

// Bundler turns a request into a single script.
type Bundler interface {
	Bundle(ctx context.Context, req Request, w io.Writer) error
}

// Apply performs the request's marker substitutions on src.
func (r Request) Apply(src string) string {
	for _, rep := range r.Replacements {
		src = strings.ReplaceAll(src, rep.Marker, rep.Code)
	}
	return src
}

// ConcatBundler wraps every module in a function registered under its exposed
// name, followed by the entry script, inside a small require registry. It does
// no dependency analysis: every module is included whether or not it is used.
type ConcatBundler struct{}

// NewConcatBundler creates a ConcatBundler.
func NewConcatBundler() *ConcatBundler {
	return &ConcatBundler{}
}

const bundlePrelude = `(function () {
var __defs = {};
var __cache = {};
function require(name) {
    if (Object.prototype.hasOwnProperty.call(__cache, name)) {
        return __cache[name].exports;
    }
    var def = __defs[name];
    if (!def) {
        throw new Error('Cannot find module \'' + name + '\'');
    }
    var module = {exports: {}};
    __cache[name] = module;
    def.call(module.exports, module, module.exports, require);
    return module.exports;
}
`

const bundleEpilogue = `})();
`

// entryName is the registry name of the entry script.
const entryName = "__entry__"

// Bundle writes the bundle for req to w.
func (b *ConcatBundler) Bundle(ctx context.Context, req Request, w io.Writer) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(bundlePrelude); err != nil {
		return oops.Wrap(err)
	}

	for _, m := range req.Modules {
		if err := ctx.Err(); err != nil {
			return oops.Wrap(err)
		}
		src, err := readInput(req, m.File)
		if err != nil {
			return err
		}
		if err := writeModule(bw, m.Expose, src); err != nil {
			return err
		}
	}

	entry, err := readInput(req, req.Entry)
	if err != nil {
		return err
	}
	if err := writeModule(bw, entryName, req.Apply(entry)); err != nil {
		return err
	}

	if _, err := bw.WriteString("require(" + quote(entryName) + ");\n" + bundleEpilogue); err != nil {
		return oops.Wrap(err)
	}
	return oops.Wrap(bw.Flush())
}

func readInput(req Request, path string) (string, error) {
	if req.OnFile != nil {
		if err := req.OnFile(path); err != nil {
			return "", err
		}
	}
	data, err := os.ReadFile(path) //nolint:gosec // inputs come from resolved plugin and search directories
	if err != nil {
		return "", oops.With("file", path).Wrapf(err, "read bundle input")
	}
	return string(data), nil
}

func writeModule(w *bufio.Writer, name, src string) error {
	_, err := w.WriteString("__defs[" + quote(name) + "] = function (module, exports, require) {\n" +
		src + "\n};\n")
	return oops.Wrap(err)
}

func quote(s string) string {
	// json string literals are valid JavaScript string literals
	b, _ := json.Marshal(s)
	return string(b)
}
