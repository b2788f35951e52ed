package dbclient

import (
	"fmt"

	_ "github.com/lib/pq"

	"composer/internal/domain"
)

// buildPostgresDSN constructs a Postgres connection string from a publish
// target.
func buildPostgresDSN(t domain.PublishTarget, password string) string {
	port := t.Port
	if port == 0 {
		port = 5432
	}
	sslMode := t.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		t.Host, port, t.Username, password, t.Database, sslMode,
	)
}

func postgresDialect(table string) dialect {
	return dialect{
		create: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			document_id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			payload JSONB NOT NULL,
			published_at TIMESTAMPTZ NOT NULL
		)`, table),
		upsert: fmt.Sprintf(`INSERT INTO %s (document_id, title, payload, published_at) VALUES ($1, $2, $3, $4)
			ON CONFLICT (document_id) DO UPDATE SET title = EXCLUDED.title, payload = EXCLUDED.payload, published_at = EXCLUDED.published_at`, table),
		selectOne: fmt.Sprintf(`SELECT document_id, title, payload::text, published_at FROM %s WHERE document_id = $1`, table),
		delete:    fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, table),
	}
}
