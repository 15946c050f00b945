// Package web serves the browser client.
package web

import (
	"embed"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

//go:embed static
var files embed.FS

// iconText is encoded into the generated app icons.
const iconText = "qr-mac"

var iconSizes = map[string]int{
	"/icon-192.png": 192,
	"/icon-512.png": 512,
}

// Handler serves the embedded client files and the generated app icons.
// "/" and "/index.html" both serve the page itself without redirecting.
func Handler() (http.Handler, error) {
	assets := make(map[string][]byte)
	err := fs.WalkDir(files, "static", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := files.ReadFile(p)
		if err != nil {
			return err
		}
		assets[strings.TrimPrefix(p, "static")] = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading embedded assets: %w", err)
	}

	for p, size := range iconSizes {
		png, err := qrcode.Encode(iconText, qrcode.Low, size)
		if err != nil {
			return nil, fmt.Errorf("rendering %s: %w", p, err)
		}
		assets[p] = png
	}
	if index, ok := assets["/index.html"]; ok {
		assets["/"] = index
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		data, ok := assets[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", contentType(r.URL.Path))
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(data)
	}), nil
}

var contentTypes = map[string]string{
	"":             "text/html; charset=utf-8",
	".html":        "text/html; charset=utf-8",
	".js":          "text/javascript; charset=utf-8",
	".webmanifest": "application/manifest+json",
	".png":         "image/png",
}

func contentType(p string) string {
	ext := path.Ext(p)
	if t, ok := contentTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
