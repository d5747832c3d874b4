// Package assets embeds the flame-graph viewer template consumed as an
// opaque UTF-8 asset by internal/convert, which fills in its documented
// substitution markers.
package assets

import _ "embed"

//go:embed flame.html
var FlameHTML string
