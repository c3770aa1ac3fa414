// Package web provides the embedded presentation client.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
)

//go:embed static
var assets embed.FS

// Static returns the sub-filesystem rooted at "static".
func Static() fs.FS {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		slog.Error("web: sub static", "error", err)
	}
	return sub
}
