// Package schema embeds the namespace documents shipped with nwbio.
package schema

import (
	"embed"
	"io/fs"
)

//go:embed bundle/*.yaml
var bundle embed.FS

// Bundle returns the embedded namespace files, rooted at their directory.
func Bundle() fs.FS {
	sub, err := fs.Sub(bundle, "bundle")
	if err != nil {
		panic(err)
	}
	return sub
}
