// Package appfs embeds the files the binaries need at runtime: SQL migrations,
// email templates and static assets.
package appfs

import "embed"

//go:embed migrations all:templates assets
var FS embed.FS
