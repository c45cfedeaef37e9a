// Package assets embeds the files the binaries need at runtime.
package assets

import "embed"

//go:embed all:templates common-passwords.txt.gz
var FS embed.FS

const CommonPasswordsFile = "common-passwords.txt.gz"
