package document

import (
	"encoding/json"
	"errors"
	"fmt"

	"composer/internal/domain"
)

var (
	ErrMissingID   = errors.New("block has no id")
	ErrReservedID  = errors.New("block id is reserved")
	ErrDuplicateID = errors.New("duplicate block id")
	ErrInvalidZone = errors.New("invalid zone id")
	ErrOrphanZone  = errors.New("zone owner is not in the document")
)

// Validate checks the structural invariants: every block has a unique,
// non-reserved id and every owned zone is reachable from the root zone.
func Validate(doc domain.Document) error {
	var errs []error
	seen := map[string]domain.ZoneID{}
	check := func(z domain.ZoneID, blocks []domain.Block) {
		for i, b := range blocks {
			switch {
			case b.ID == "":
				errs = append(errs, fmt.Errorf("%s[%d]: %w", z, i, ErrMissingID))
			case b.ID == domain.RootID:
				errs = append(errs, fmt.Errorf("%s[%d]: %w", z, i, ErrReservedID))
			default:
				if prev, dup := seen[b.ID]; dup {
					errs = append(errs, fmt.Errorf("%q in %s and %s: %w", b.ID, prev, z, ErrDuplicateID))
					continue
				}
				seen[b.ID] = z
			}
		}
	}
	check(domain.RootZone, doc.Content)
	for z, blocks := range doc.Zones {
		if _, ok := z.Owner(); !ok {
			errs = append(errs, fmt.Errorf("%q: %w", z, ErrInvalidZone))
			continue
		}
		check(z, blocks)
	}
	reachable := reachableZones(doc)
	for z := range doc.Zones {
		if _, ok := z.Owner(); ok && !reachable[z] {
			errs = append(errs, fmt.Errorf("%s: %w", z, ErrOrphanZone))
		}
	}
	return errors.Join(errs...)
}

// Sanitize fills nil collections and drops zones that are malformed or not
// reachable from the root zone.
func Sanitize(doc domain.Document) domain.Document {
	doc = doc.Normalized()
	reachable := reachableZones(doc)
	pruned := false
	for z := range doc.Zones {
		if !reachable[z] {
			pruned = true
			break
		}
	}
	if !pruned {
		return doc
	}
	zones := make(map[domain.ZoneID][]domain.Block, len(reachable))
	for z, blocks := range doc.Zones {
		if reachable[z] {
			zones[z] = blocks
		}
	}
	doc.Zones = zones
	return doc
}

// Hydrate decodes a persisted document payload, prunes orphaned zones and
// validates the result.
func Hydrate(data []byte) (domain.Document, error) {
	var doc domain.Document
	if len(data) == 0 {
		return domain.NewDocument(), nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.Document{}, fmt.Errorf("decode document: %w", err)
	}
	doc = Sanitize(doc)
	if err := Validate(doc); err != nil {
		return domain.Document{}, fmt.Errorf("validate document: %w", err)
	}
	return doc, nil
}

// Marshal encodes a document as its persisted JSON payload.
func Marshal(doc domain.Document) ([]byte, error) {
	data, err := json.Marshal(doc.Normalized())
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}
