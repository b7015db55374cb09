package migrations

import "embed"

// Files holds the schema migrations, one directory per database driver.
//
//go:embed postgres/*.sql sqlite/*.sql
var Files embed.FS
