// Package migrations embeds the MySQL schema for the conversation archive.
// Files are applied in version order; the version is the file name prefix
// before the first underscore.
package migrations

import "embed"

// Files 暴露所有 SQL 迁移文件。
//
//go:embed *.sql
var Files embed.FS
