// Package migrations 内置 SQL schema，按文件名顺序执行
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
