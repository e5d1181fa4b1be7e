package web

import "embed"

// FS contains the embedded monitor page (HTML, CSS, JS).
//
//go:embed *.html *.css *.js
var FS embed.FS
