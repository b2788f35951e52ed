package search

import (
	"context"

	"github.com/rs/zerolog"

	"composer/internal/domain"
)

// Service searches saved documents through Meilisearch when it is healthy
// and falls back to scanning the document store.
type Service struct {
	meili *Meili
	docs  domain.DocumentStore
	log   zerolog.Logger
}

// NewService creates a search service. meili may be nil.
func NewService(m *Meili, docs domain.DocumentStore, log zerolog.Logger) *Service {
	return &Service{meili: m, docs: docs, log: log}
}

// Search returns blocks matching query across saved documents, or within
// one document when documentID is set.
func (s *Service) Search(ctx context.Context, query, documentID string, limit int) ([]Hit, error) {
	if s.meili != nil && s.meili.Healthy() {
		hits, err := s.meili.Search(query, documentID, limit)
		if err == nil {
			return nonNil(hits), nil
		}
		s.log.Warn().Err(err).Msg("meilisearch error, falling back to local scan")
	}

	var recs []domain.DocumentRecord
	if documentID != "" {
		rec, err := s.docs.LoadDocument(ctx, documentID)
		if err != nil {
			return nil, err
		}
		recs = []domain.DocumentRecord{*rec}
	} else {
		var err error
		if recs, err = s.docs.ListDocuments(ctx); err != nil {
			return nil, err
		}
	}

	hits := []Hit{}
	for _, rec := range recs {
		for _, h := range Blocks(rec.Data, query) {
			h.DocumentID = rec.ID
			hits = append(hits, h)
			if limit > 0 && len(hits) == limit {
				return hits, nil
			}
		}
	}
	return hits, nil
}

// Index mirrors a saved document into Meilisearch in the background.
func (s *Service) Index(documentID string, doc domain.Document) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexDocument(documentID, doc); err != nil {
			s.log.Warn().Err(err).Str("document", documentID).Msg("index document")
		}
	}()
}

// Remove drops a document from the index in the background.
func (s *Service) Remove(documentID string) {
	if s.meili == nil {
		return
	}
	go func() {
		if err := s.meili.DeleteDocument(documentID); err != nil {
			s.log.Warn().Err(err).Str("document", documentID).Msg("remove document from index")
		}
	}()
}

func nonNil(hits []Hit) []Hit {
	if hits == nil {
		return []Hit{}
	}
	return hits
}
