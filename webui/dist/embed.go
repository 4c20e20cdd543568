//go:build !debug

// Package dist holds the static files of the web UI.
package dist

import (
	"embed"
	"io/fs"
)

//go:embed index.html app.js style.css
var content embed.FS

var Content fs.FS = content
