package dbclient

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"composer/internal/domain"
)

var (
	ErrNotFound         = errors.New("publication not found")
	ErrUnsupported      = errors.New("unsupported driver")
	ErrInvalidTableName = errors.New("invalid table name")
)

// Publication is a document as written to a publish target.
type Publication struct {
	DocumentID  string    `json:"documentId"`
	Title       string    `json:"title"`
	Payload     []byte    `json:"payload"`
	PublishedAt time.Time `json:"publishedAt"`
}

// Publisher writes published documents to an external database.
type Publisher interface {
	// TestConnection verifies connectivity.
	TestConnection(ctx context.Context) error

	// Publish inserts or replaces the publication of p.DocumentID.
	Publish(ctx context.Context, p Publication) error

	// Fetch reads back a publication. ErrNotFound when absent.
	Fetch(ctx context.Context, documentID string) (*Publication, error)

	// Unpublish removes a publication. Removing an absent one is not an error.
	Unpublish(ctx context.Context, documentID string) error

	Close() error
}

// NewPublisher creates a Publisher for the target. The password must be
// provided separately (from the secret store).
func NewPublisher(t domain.PublishTarget, password string) (Publisher, error) {
	if !validTable.MatchString(t.TableName()) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTableName, t.TableName())
	}
	switch t.Driver {
	case domain.DatabaseDriverSQLite:
		return newSQLPublisher("sqlite", sqliteDSN(t), sqliteDialect(t.TableName()))
	case domain.DatabaseDriverMySQL:
		return newSQLPublisher("mysql", buildMySQLDSN(t, password), mysqlDialect(t.TableName()))
	case domain.DatabaseDriverPostgres:
		return newSQLPublisher("postgres", buildPostgresDSN(t, password), postgresDialect(t.TableName()))
	case domain.DatabaseDriverMongoDB:
		return newMongoPublisher(t, password)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, t.Driver)
	}
}

// Table names are interpolated into SQL, so only plain identifiers pass.
var validTable = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)
