// Package web embeds the HTML templates and static assets so the server
// binary runs from any working directory.
package web

import (
	"embed"
	"io/fs"
)

//go:embed all:templates static
var assets embed.FS

// Templates is the templates/ directory.
func Templates() fs.FS { return sub("templates") }

// Static is the static/ directory, served under /static/.
func Static() fs.FS { return sub("static") }

func sub(dir string) fs.FS {
	f, err := fs.Sub(assets, dir)
	if err != nil {
		// dir is a constant that exists in the embed pattern.
		panic(err)
	}
	return f
}
