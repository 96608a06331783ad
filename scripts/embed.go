// Package scripts embeds the built-in detector scripts. Each top-level
// .risor file is one detector; its file name is the detector id.
package scripts

import "embed"

//go:embed *.risor
var FS embed.FS
