package dbclient

import (
	"fmt"

	_ "modernc.org/sqlite"

	"composer/internal/domain"
)

// sqliteDSN opens an external SQLite file with WAL and a busy timeout.
func sqliteDSN(t domain.PublishTarget) string {
	return t.Host + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

func sqliteDialect(table string) dialect {
	return dialect{
		create: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			document_id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL,
			published_at DATETIME NOT NULL
		)`, table),
		upsert: fmt.Sprintf(`INSERT INTO %s (document_id, title, payload, published_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(document_id) DO UPDATE SET title = excluded.title, payload = excluded.payload, published_at = excluded.published_at`, table),
		selectOne: fmt.Sprintf(`SELECT document_id, title, payload, published_at FROM %s WHERE document_id = ?`, table),
		delete:    fmt.Sprintf(`DELETE FROM %s WHERE document_id = ?`, table),
	}
}
