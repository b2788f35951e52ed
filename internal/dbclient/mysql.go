package dbclient

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"composer/internal/domain"
)

// buildMySQLDSN constructs a MySQL DSN from a publish target.
func buildMySQLDSN(t domain.PublishTarget, password string) string {
	port := t.Port
	if port == 0 {
		port = 3306
	}
	// Format: user:password@tcp(host:port)/dbname?parseTime=true
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		t.Username, password, t.Host, port, t.Database,
	)
	if t.SSLMode == "require" {
		dsn += "&tls=true"
	}
	return dsn
}

func mysqlDialect(table string) dialect {
	return dialect{
		create: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			document_id VARCHAR(191) PRIMARY KEY,
			title VARCHAR(512) NOT NULL DEFAULT '',
			payload LONGTEXT NOT NULL,
			published_at DATETIME(6) NOT NULL
		) CHARACTER SET utf8mb4`, table),
		upsert: fmt.Sprintf(`INSERT INTO %s (document_id, title, payload, published_at) VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE title = VALUES(title), payload = VALUES(payload), published_at = VALUES(published_at)`, table),
		selectOne: fmt.Sprintf(`SELECT document_id, title, payload, published_at FROM %s WHERE document_id = ?`, table),
		delete:    fmt.Sprintf(`DELETE FROM %s WHERE document_id = ?`, table),
	}
}
