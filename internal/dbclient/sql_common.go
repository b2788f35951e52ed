package dbclient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// dialect holds the statements one SQL engine needs.
type dialect struct {
	create    string
	upsert    string
	selectOne string
	delete    string
}

// sqlPublisher is the shared implementation for MySQL, Postgres and SQLite.
type sqlPublisher struct {
	driverName string
	db         *sql.DB
	dialect    dialect

	once    sync.Once
	initErr error
}

func newSQLPublisher(driverName, dsn string, d dialect) (*sqlPublisher, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)
	return &sqlPublisher{driverName: driverName, db: db, dialect: d}, nil
}

func (p *sqlPublisher) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return p.db.PingContext(ctx)
}

// ensureTable creates the publication table on first use.
func (p *sqlPublisher) ensureTable(ctx context.Context) error {
	p.once.Do(func() {
		if _, err := p.db.ExecContext(ctx, p.dialect.create); err != nil {
			p.initErr = fmt.Errorf("create publication table: %w", err)
		}
	})
	return p.initErr
}

func (p *sqlPublisher) Publish(ctx context.Context, pub Publication) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := p.ensureTable(ctx); err != nil {
		return err
	}
	if pub.PublishedAt.IsZero() {
		pub.PublishedAt = time.Now()
	}
	_, err := p.db.ExecContext(ctx, p.dialect.upsert,
		pub.DocumentID, pub.Title, string(pub.Payload), pub.PublishedAt.UTC())
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", pub.DocumentID, p.driverName, err)
	}
	return nil
}

func (p *sqlPublisher) Fetch(ctx context.Context, documentID string) (*Publication, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := p.ensureTable(ctx); err != nil {
		return nil, err
	}
	var (
		pub     Publication
		payload string
	)
	err := p.db.QueryRowContext(ctx, p.dialect.selectOne, documentID).
		Scan(&pub.DocumentID, &pub.Title, &payload, &pub.PublishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", documentID, err)
	}
	pub.Payload = []byte(payload)
	return &pub, nil
}

func (p *sqlPublisher) Unpublish(ctx context.Context, documentID string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := p.ensureTable(ctx); err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, p.dialect.delete, documentID); err != nil {
		return fmt.Errorf("unpublish %s: %w", documentID, err)
	}
	return nil
}

func (p *sqlPublisher) Close() error {
	return p.db.Close()
}
