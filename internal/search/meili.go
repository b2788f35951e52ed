package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog"

	"composer/internal/document"
	"composer/internal/domain"
)

var ErrUnavailable = errors.New("meilisearch unavailable")

// BlockRecord is the indexed form of one block.
type BlockRecord struct {
	ID         string `json:"id"`
	DocumentID string `json:"documentId"`
	BlockID    string `json:"blockId"`
	Type       string `json:"type"`
	Zone       string `json:"zone"`
	Index      int    `json:"index"`
	Depth      int    `json:"depth"`
	Text       string `json:"text"`
}

// Records converts a document into index records, one per block.
func Records(documentID string, doc domain.Document) []BlockRecord {
	var out []BlockRecord
	document.Walk(doc, func(b domain.Block, sel domain.Selector, depth int) bool {
		out = append(out, BlockRecord{
			ID:         recordID(documentID, b.ID),
			DocumentID: documentID,
			BlockID:    b.ID,
			Type:       b.Type,
			Zone:       string(sel.Zone),
			Index:      sel.Index,
			Depth:      depth,
			Text:       textOf(map[string]any(b.Props)),
		})
		return true
	})
	return out
}

// recordID builds a Meilisearch primary key, which only allows
// alphanumerics, '-' and '_'.
func recordID(documentID, blockID string) string {
	clean := func(s string) string {
		return strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
				return r
			}
			return '_'
		}, s)
	}
	return clean(documentID) + "__" + clean(blockID)
}

// Meili mirrors document blocks into a Meilisearch index.
type Meili struct {
	client  meili.ServiceManager
	index   string
	log     zerolog.Logger
	healthy atomic.Bool
	done    chan struct{}

	mu      sync.Mutex
	indexed map[string]map[string]bool // document id -> record ids
}

// NewMeili creates a client and configures the index. A failed initial
// health check leaves the client unhealthy; the health loop retries.
func NewMeili(url, apiKey, index string, log zerolog.Logger) *Meili {
	m := &Meili{
		client:  meili.New(url, meili.WithAPIKey(apiKey)),
		index:   index,
		log:     log,
		done:    make(chan struct{}),
		indexed: map[string]map[string]bool{},
	}
	if _, err := m.client.Health(); err != nil {
		log.Warn().Err(err).Str("url", url).Msg("meilisearch unavailable")
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}
	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: m.index, PrimaryKey: "id"}); err != nil {
		m.log.Debug().Err(err).Str("index", m.index).Msg("create index (may already exist)")
	}
	idx := m.client.Index(m.index)
	filterable := []interface{}{"documentId", "type"}
	if _, err := idx.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.Warn().Err(err).Msg("update filterable attributes")
	}
	searchable := []string{"text", "type"}
	if _, err := idx.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.Warn().Err(err).Msg("update searchable attributes")
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			was := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !was {
				m.log.Info().Msg("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the health loop.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// IndexDocument replaces the records of a document. Records of blocks that
// were indexed before and no longer exist are deleted.
func (m *Meili) IndexDocument(documentID string, doc domain.Document) error {
	if !m.Healthy() {
		return ErrUnavailable
	}
	records := Records(documentID, doc)
	current := make(map[string]bool, len(records))
	for _, r := range records {
		current[r.ID] = true
	}
	idx := m.client.Index(m.index)
	if len(records) > 0 {
		if _, err := idx.AddDocuments(records, nil); err != nil {
			return fmt.Errorf("index document %s: %w", documentID, err)
		}
	}

	m.mu.Lock()
	previous := m.indexed[documentID]
	m.indexed[documentID] = current
	m.mu.Unlock()

	for id := range previous {
		if current[id] {
			continue
		}
		if _, err := idx.DeleteDocument(id, nil); err != nil {
			return fmt.Errorf("delete stale record %s: %w", id, err)
		}
	}
	return nil
}

// DeleteDocument removes every record indexed for a document.
func (m *Meili) DeleteDocument(documentID string) error {
	m.mu.Lock()
	previous := m.indexed[documentID]
	delete(m.indexed, documentID)
	m.mu.Unlock()

	idx := m.client.Index(m.index)
	for id := range previous {
		if _, err := idx.DeleteDocument(id, nil); err != nil {
			return fmt.Errorf("delete record %s: %w", id, err)
		}
	}
	return nil
}

// Search queries the index, optionally restricted to one document.
func (m *Meili) Search(query, documentID string, limit int) ([]Hit, error) {
	if !m.Healthy() {
		return nil, ErrUnavailable
	}
	if limit <= 0 {
		limit = 20
	}
	req := &meili.SearchRequest{
		IndexUID: m.index,
		Query:    query,
		Limit:    int64(limit),
	}
	if documentID != "" {
		req.Filter = []string{fmt.Sprintf("documentId = %q", documentID)}
	}
	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: []*meili.SearchRequest{req}})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	var hits []Hit
	for _, sr := range resp.Results {
		for _, h := range sr.Hits {
			hits = append(hits, hitFromRecord(decodeRecord(h)))
		}
	}
	return hits, nil
}

func decodeRecord(hit meili.Hit) BlockRecord {
	var r BlockRecord
	str := func(key string) string {
		var s string
		if raw, ok := hit[key]; ok {
			_ = json.Unmarshal(raw, &s)
		}
		return s
	}
	num := func(key string) int {
		var n int
		if raw, ok := hit[key]; ok {
			_ = json.Unmarshal(raw, &n)
		}
		return n
	}
	r.ID = str("id")
	r.DocumentID = str("documentId")
	r.BlockID = str("blockId")
	r.Type = str("type")
	r.Zone = str("zone")
	r.Text = str("text")
	r.Index = num("index")
	r.Depth = num("depth")
	return r
}

func hitFromRecord(r BlockRecord) Hit {
	return Hit{
		DocumentID: r.DocumentID,
		ID:         r.BlockID,
		Type:       r.Type,
		Selector:   domain.Selector{Zone: domain.ZoneID(r.Zone), Index: r.Index},
		Depth:      r.Depth,
		Field:      "text",
		Snippet:    r.Text,
	}
}
