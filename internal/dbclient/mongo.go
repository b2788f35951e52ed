package dbclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"composer/internal/domain"
)

// mongoPublisher stores each publication as one document keyed by the
// document id. The payload is stored as a nested BSON document, not a
// string, so it can be queried in place.
type mongoPublisher struct {
	client *mongo.Client
	coll   *mongo.Collection
}

type mongoPublication struct {
	ID          string    `bson:"_id"`
	Title       string    `bson:"title"`
	Document    bson.D    `bson:"document"`
	PublishedAt time.Time `bson:"publishedAt"`
}

// buildMongoURI returns the connection URI and database name. Host may be a
// full mongodb:// or mongodb+srv:// URI with a <password> placeholder.
func buildMongoURI(t domain.PublishTarget, password string) (uri, dbName string) {
	dbName = t.Database
	if strings.HasPrefix(t.Host, "mongodb+srv://") || strings.HasPrefix(t.Host, "mongodb://") {
		uri = t.Host
		if password != "" {
			uri = strings.ReplaceAll(uri, "<password>", password)
			uri = strings.ReplaceAll(uri, "<db_password>", password)
		}
	} else {
		port := t.Port
		if port == 0 {
			port = 27017
		}
		if t.Username != "" {
			uri = fmt.Sprintf("mongodb://%s:%s@%s:%d", t.Username, password, t.Host, port)
		} else {
			uri = fmt.Sprintf("mongodb://%s:%d", t.Host, port)
		}
	}
	if dbName == "" {
		dbName = "composer"
	}
	return uri, dbName
}

func newMongoPublisher(t domain.PublishTarget, password string) (*mongoPublisher, error) {
	uri, dbName := buildMongoURI(t, password)
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &mongoPublisher{
		client: client,
		coll:   client.Database(dbName).Collection(t.TableName()),
	}, nil
}

func (m *mongoPublisher) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

func (m *mongoPublisher) Publish(ctx context.Context, p Publication) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var doc bson.D
	if err := bson.UnmarshalExtJSON(p.Payload, false, &doc); err != nil {
		return fmt.Errorf("convert payload of %s: %w", p.DocumentID, err)
	}
	if p.PublishedAt.IsZero() {
		p.PublishedAt = time.Now()
	}
	rec := mongoPublication{ID: p.DocumentID, Title: p.Title, Document: doc, PublishedAt: p.PublishedAt.UTC()}
	_, err := m.coll.ReplaceOne(ctx, bson.M{"_id": p.DocumentID}, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("publish %s to mongo: %w", p.DocumentID, err)
	}
	return nil
}

func (m *mongoPublisher) Fetch(ctx context.Context, documentID string) (*Publication, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var rec mongoPublication
	err := m.coll.FindOne(ctx, bson.M{"_id": documentID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", documentID, err)
	}
	payload, err := bson.MarshalExtJSON(rec.Document, false, false)
	if err != nil {
		return nil, fmt.Errorf("convert payload of %s: %w", documentID, err)
	}
	return &Publication{DocumentID: rec.ID, Title: rec.Title, Payload: payload, PublishedAt: rec.PublishedAt}, nil
}

func (m *mongoPublisher) Unpublish(ctx context.Context, documentID string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := m.coll.DeleteOne(ctx, bson.M{"_id": documentID}); err != nil {
		return fmt.Errorf("unpublish %s: %w", documentID, err)
	}
	return nil
}

func (m *mongoPublisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
