// Package model holds the records shared across ingestion, scoring and
// export: ledger entries, score rows and generic query results.
package model

import "time"

// SourceFile is one ledger entry: a landing file that was loaded into a
// table. Entries are keyed by (Path, ContentHash) and never updated.
type SourceFile struct {
	Path        string    `json:"file_path"`
	Table       string    `json:"table_name"`
	RowCount    int64     `json:"row_count"`
	ContentHash string    `json:"content_hash"`
	LoadedAt    time.Time `json:"loaded_at"`
}
