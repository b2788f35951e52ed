package domain

import "time"

// DatabaseDriver represents the type of database engine a document is
// published to.
type DatabaseDriver string

const (
	DatabaseDriverMySQL    DatabaseDriver = "mysql"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
	DatabaseDriverMongoDB  DatabaseDriver = "mongodb"
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
)

// PublishTarget holds the metadata for connecting to an external database
// that receives published documents. The password is stored separately in
// the SecretStore.
type PublishTarget struct {
	ID        string         `json:"id" toml:"id"`
	Name      string         `json:"name" toml:"name"`
	Driver    DatabaseDriver `json:"driver" toml:"driver"`
	Host      string         `json:"host" toml:"host"`         // hostname, URI, or file path (sqlite)
	Port      int            `json:"port" toml:"port"`         // 0 for defaults
	Database  string         `json:"database" toml:"database"` // db name, empty for sqlite
	Username  string         `json:"username" toml:"username"`
	SSLMode   string         `json:"sslMode" toml:"ssl_mode"`
	Table     string         `json:"table" toml:"table"` // table or collection, defaults to "published_documents"
	CreatedAt time.Time      `json:"createdAt" toml:"-"`
}

// SecretKey is the key under which the target's password is stored.
func (t PublishTarget) SecretKey() string {
	return "publish:" + t.ID
}

// TableName returns the configured table or the default.
func (t PublishTarget) TableName() string {
	if t.Table == "" {
		return "published_documents"
	}
	return t.Table
}
