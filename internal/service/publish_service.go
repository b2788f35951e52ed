package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"composer/internal/dbclient"
	"composer/internal/document"
	"composer/internal/domain"
	"composer/internal/observability"
	"composer/internal/secret"
)

var ErrUnknownTarget = errors.New("unknown publish target")

// PublisherFactory opens a publisher for a target.
type PublisherFactory func(t domain.PublishTarget, password string) (dbclient.Publisher, error)

// ─────────────────────────────────────────────────────────────
// Publish Service: copies saved documents to external databases
// ─────────────────────────────────────────────────────────────

type PublishService struct {
	docs    *DocumentService
	targets map[string]domain.PublishTarget
	order   []string
	secrets secret.SecretStore
	open    PublisherFactory
	emitter EventEmitter
	log     zerolog.Logger
	now     func() time.Time
}

func NewPublishService(docs *DocumentService, targets []domain.PublishTarget, secrets secret.SecretStore, emitter EventEmitter, log zerolog.Logger) *PublishService {
	s := &PublishService{
		docs:    docs,
		targets: make(map[string]domain.PublishTarget, len(targets)),
		secrets: secrets,
		open:    dbclient.NewPublisher,
		emitter: emitter,
		log:     log,
		now:     time.Now,
	}
	for _, t := range targets {
		s.targets[t.ID] = t
		s.order = append(s.order, t.ID)
	}
	return s
}

// WithFactory swaps how publishers are opened.
func (s *PublishService) WithFactory(f PublisherFactory) *PublishService {
	s.open = f
	return s
}

// Targets returns the configured targets in configuration order.
func (s *PublishService) Targets() []domain.PublishTarget {
	out := make([]domain.PublishTarget, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.targets[id])
	}
	return out
}

func (s *PublishService) publisher(targetID string) (dbclient.Publisher, error) {
	t, ok := s.targets[targetID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, targetID)
	}
	var password string
	if s.secrets != nil && t.Driver != domain.DatabaseDriverSQLite {
		pw, err := s.secrets.Get(t.SecretKey())
		if err != nil {
			return nil, fmt.Errorf("read secret for %s: %w", targetID, err)
		}
		password = string(pw)
	}
	return s.open(t, password)
}

// TestTarget checks that a target is reachable.
func (s *PublishService) TestTarget(ctx context.Context, targetID string) error {
	p, err := s.publisher(targetID)
	if err != nil {
		return err
	}
	defer p.Close()
	return p.TestConnection(ctx)
}

// Publish saves the document if it is open and dirty, then writes the saved
// version to the target.
func (s *PublishService) Publish(ctx context.Context, documentID, targetID string) (pub *dbclient.Publication, err error) {
	ctx, span := observability.StartSpan(ctx, "document.publish")
	defer func() { observability.EndSpan(span, err) }()

	p, err := s.publisher(targetID)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	if s.docs.Dirty(documentID) {
		if err := s.docs.Save(ctx, documentID, TriggerManual); err != nil {
			return nil, err
		}
	}
	rec, err := s.docs.docs.LoadDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("publish %s: %w", documentID, err)
	}
	payload, err := document.Marshal(rec.Data)
	if err != nil {
		return nil, fmt.Errorf("publish %s: %w", documentID, err)
	}

	at := s.now().UTC()
	pub = &dbclient.Publication{DocumentID: documentID, Title: rec.Title, Payload: payload, PublishedAt: at}
	if err := p.Publish(ctx, *pub); err != nil {
		s.log.Error().Err(err).Str("document", documentID).Str("target", targetID).Msg("publish failed")
		return nil, fmt.Errorf("publish %s to %s: %w", documentID, targetID, err)
	}
	if err := s.docs.docs.MarkPublished(ctx, documentID, at); err != nil {
		return nil, fmt.Errorf("mark %s published: %w", documentID, err)
	}

	s.emitter.Emit(ctx, EventDocumentPublished, map[string]string{"documentId": documentID, "target": targetID})
	s.log.Info().Str("document", documentID).Str("target", targetID).Msg("document published")
	return pub, nil
}

// Published reads back what a target holds for a document.
func (s *PublishService) Published(ctx context.Context, documentID, targetID string) (*dbclient.Publication, error) {
	p, err := s.publisher(targetID)
	if err != nil {
		return nil, err
	}
	defer p.Close()
	return p.Fetch(ctx, documentID)
}

// Unpublish removes a document from a target.
func (s *PublishService) Unpublish(ctx context.Context, documentID, targetID string) error {
	p, err := s.publisher(targetID)
	if err != nil {
		return err
	}
	defer p.Close()
	if err := p.Unpublish(ctx, documentID); err != nil {
		return fmt.Errorf("unpublish %s from %s: %w", documentID, targetID, err)
	}
	s.emitter.Emit(ctx, EventDocumentUnpublished, map[string]string{"documentId": documentID, "target": targetID})
	return nil
}
