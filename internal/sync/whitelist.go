// Package sync holds the constants shared by the exporter (C10),
// importer (C11), and watcher (C12): the closed whitelist of tables
// that may ever be written to or read from an export directory.
package sync

// Tables is the exact whitelist from the filesystem layout
// specification. Every table named here is assumed to have a single
// "id" TEXT PRIMARY KEY column, which is what lets the exporter,
// importer, and deletions log treat every table identically.
var Tables = []string{
	"repositories",
	"indexed_files",
	"indexed_symbols",
	"indexed_references",
	"projects",
	"project_repositories",
}

// Allowed reports whether table is in the whitelist.
func Allowed(table string) bool {
	for _, t := range Tables {
		if t == table {
			return true
		}
	}
	return false
}

// DeletionsFileName is the append-only deletion log's fixed name
// within an export directory.
const DeletionsFileName = ".deletions.jsonl"
