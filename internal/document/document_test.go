package document_test

import (
	"fmt"
	"math/rand"
	"testing"

	"composer/internal/document"
	"composer/internal/domain"
)

func blk(id, typ string) domain.Block {
	return domain.Block{ID: id, Type: typ, Props: domain.Props{"title": id}}
}

func ids(blocks []domain.Block) []string {
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i] = b.ID
	}
	return out
}

func assertOrder(t *testing.T, got []domain.Block, want ...string) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("expected %v, got %v", want, g)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, g)
		}
	}
}

// twoColumns builds: root [cols, text]; cols:left [a]; cols:right [].
func twoColumns(t *testing.T) domain.Document {
	t.Helper()
	doc := domain.NewDocument()
	var ok bool
	doc, ok = document.Insert(doc, domain.RootZone, 0, blk("cols", "Columns"), []string{"left", "right"})
	if !ok {
		t.Fatal("insert cols failed")
	}
	doc, ok = document.Insert(doc, domain.RootZone, 1, blk("text", "Text"), nil)
	if !ok {
		t.Fatal("insert text failed")
	}
	doc, ok = document.Insert(doc, domain.ZoneKey("cols", "left"), 0, blk("a", "Heading"), nil)
	if !ok {
		t.Fatal("insert a failed")
	}
	return doc
}

// ─────────────────────────────────────────────────────────────
// Insert
// ─────────────────────────────────────────────────────────────

func TestInsert_ClampsIndex(t *testing.T) {
	doc := domain.NewDocument()
	doc, _ = document.Insert(doc, domain.RootZone, 99, blk("a", "Text"), nil)
	doc, _ = document.Insert(doc, domain.RootZone, -5, blk("b", "Text"), nil)
	assertOrder(t, doc.Content, "b", "a")
}

func TestInsert_RejectsDuplicateAndReservedIDs(t *testing.T) {
	doc := twoColumns(t)
	if _, ok := document.Insert(doc, domain.RootZone, 0, blk("a", "Text"), nil); ok {
		t.Error("expected duplicate id to be rejected")
	}
	if _, ok := document.Insert(doc, domain.RootZone, 0, blk(domain.RootID, "Text"), nil); ok {
		t.Error("expected reserved id to be rejected")
	}
	if _, ok := document.Insert(doc, domain.RootZone, 0, domain.Block{Type: "Text"}, nil); ok {
		t.Error("expected empty id to be rejected")
	}
}

func TestInsert_RequiresLiveOwner(t *testing.T) {
	doc := domain.NewDocument()
	got, ok := document.Insert(doc, domain.ZoneKey("ghost", "items"), 0, blk("a", "Text"), nil)
	if ok {
		t.Fatal("expected insert into zone of missing owner to fail")
	}
	if len(got.Zones) != 0 {
		t.Errorf("expected no zones, got %v", got.Zones)
	}
}

func TestInsert_CreatesOwnedZonesAndSharesUntouched(t *testing.T) {
	doc := twoColumns(t)
	if _, ok := doc.Zones[domain.ZoneKey("cols", "right")]; !ok {
		t.Fatal("expected declared zone cols:right to exist")
	}
	left := doc.Zones[domain.ZoneKey("cols", "left")]
	next, ok := document.Insert(doc, domain.RootZone, 0, blk("c", "Text"), nil)
	if !ok {
		t.Fatal("insert failed")
	}
	if &next.Zones[domain.ZoneKey("cols", "left")][0] != &left[0] {
		t.Error("expected untouched zone slice to be shared")
	}
	if len(doc.Content) != 2 {
		t.Errorf("expected original content untouched, got %d blocks", len(doc.Content))
	}
}

// ─────────────────────────────────────────────────────────────
// Replace / Reorder
// ─────────────────────────────────────────────────────────────

func TestReplace_KeepsID(t *testing.T) {
	doc := twoColumns(t)
	next, ok := document.Replace(doc, domain.RootZone, 1, domain.Block{Props: domain.Props{"text": "hi"}})
	if !ok {
		t.Fatal("replace failed")
	}
	b := next.Content[1]
	if b.ID != "text" || b.Type != "Text" || b.Props["text"] != "hi" {
		t.Errorf("unexpected block %+v", b)
	}
	if doc.Content[1].Props["text"] != nil {
		t.Error("original document mutated")
	}
	if _, ok := document.Replace(doc, domain.RootZone, 1, blk("other", "Text")); ok {
		t.Error("expected id change to be rejected")
	}
	if _, ok := document.Replace(doc, domain.RootZone, 7, blk("text", "Text")); ok {
		t.Error("expected out of range replace to be rejected")
	}
}

func TestReorder_ShiftsByOne(t *testing.T) {
	doc := domain.NewDocument()
	for i, id := range []string{"a", "b", "c", "d"} {
		doc, _ = document.Insert(doc, domain.RootZone, i, blk(id, "Text"), nil)
	}
	next, ok := document.Reorder(doc, domain.RootZone, 0, 2)
	if !ok {
		t.Fatal("reorder failed")
	}
	assertOrder(t, next.Content, "b", "c", "a", "d")

	next, _ = document.Reorder(doc, domain.RootZone, 3, 1)
	assertOrder(t, next.Content, "a", "d", "b", "c")

	next, _ = document.Reorder(doc, domain.RootZone, 1, 50)
	assertOrder(t, next.Content, "a", "c", "d", "b")
}

func TestReorder_NoOps(t *testing.T) {
	doc := twoColumns(t)
	if _, ok := document.Reorder(doc, domain.RootZone, 1, 1); ok {
		t.Error("expected same-index reorder to be a no-op")
	}
	if _, ok := document.Reorder(doc, domain.RootZone, 9, 0); ok {
		t.Error("expected out of range reorder to be a no-op")
	}
	if _, ok := document.Reorder(doc, "nope:zone", 0, 1); ok {
		t.Error("expected reorder in unknown zone to be a no-op")
	}
}

// ─────────────────────────────────────────────────────────────
// Move
// ─────────────────────────────────────────────────────────────

func TestMove_AndBackRestoresArrangement(t *testing.T) {
	doc := twoColumns(t)
	left, right := domain.ZoneKey("cols", "left"), domain.ZoneKey("cols", "right")

	moved, ok := document.Move(doc, left, 0, right, 0)
	if !ok {
		t.Fatal("move failed")
	}
	assertOrder(t, moved.Zones[left])
	assertOrder(t, moved.Zones[right], "a")

	back, ok := document.Move(moved, right, 0, left, 0)
	if !ok {
		t.Fatal("move back failed")
	}
	assertOrder(t, back.Zones[left], "a")
	assertOrder(t, back.Zones[right])
}

func TestMove_ClampsToAppend(t *testing.T) {
	doc := twoColumns(t)
	next, ok := document.Move(doc, domain.ZoneKey("cols", "left"), 0, domain.RootZone, 100)
	if !ok {
		t.Fatal("move failed")
	}
	assertOrder(t, next.Content, "cols", "text", "a")
}

func TestMove_OwnedZonesTravel(t *testing.T) {
	doc := twoColumns(t)
	doc, _ = document.Insert(doc, domain.RootZone, 2, blk("outer", "Columns"), []string{"left"})
	next, ok := document.Move(doc, domain.RootZone, 0, domain.ZoneKey("outer", "left"), 0)
	if !ok {
		t.Fatal("move failed")
	}
	assertOrder(t, next.Zones[domain.ZoneKey("cols", "left")], "a")
	if err := document.Validate(next); err != nil {
		t.Errorf("expected valid document, got %v", err)
	}
	if len(document.Flatten(next)) != 4 {
		t.Errorf("expected 4 blocks, got %v", ids(document.Flatten(next)))
	}
}

func TestMove_RejectsCycles(t *testing.T) {
	doc := twoColumns(t)
	doc, _ = document.Insert(doc, domain.ZoneKey("cols", "right"), 0, blk("inner", "Columns"), []string{"body"})

	if _, ok := document.Move(doc, domain.RootZone, 0, domain.ZoneKey("cols", "left"), 0); ok {
		t.Error("expected move into own zone to be rejected")
	}
	if _, ok := document.Move(doc, domain.RootZone, 0, domain.ZoneKey("inner", "body"), 0); ok {
		t.Error("expected move into descendant zone to be rejected")
	}
}

// ─────────────────────────────────────────────────────────────
// Remove / CascadePrune
// ─────────────────────────────────────────────────────────────

func TestRemove_CascadesIntoOwnedZones(t *testing.T) {
	doc := twoColumns(t)
	doc, _ = document.Insert(doc, domain.ZoneKey("cols", "right"), 0, blk("inner", "Columns"), []string{"body"})
	doc, _ = document.Insert(doc, domain.ZoneKey("inner", "body"), 0, blk("deep", "Text"), nil)

	next, ok := document.Remove(doc, domain.RootZone, 0)
	if !ok {
		t.Fatal("remove failed")
	}
	assertOrder(t, document.Flatten(next), "text")
	if len(next.Zones) != 0 {
		t.Errorf("expected all owned zones pruned, got %v", next.Zones)
	}
}

func TestRemove_EmptyZoneIsNoop(t *testing.T) {
	doc := domain.NewDocument()
	next, ok := document.Remove(doc, domain.RootZone, 0)
	if ok {
		t.Fatal("expected no-op")
	}
	if len(next.Content) != 0 {
		t.Error("unexpected content")
	}
}

func TestCascadePrune_NothingToPrune(t *testing.T) {
	doc := twoColumns(t)
	next := document.CascadePrune(doc, "text")
	if len(next.Zones) != len(doc.Zones) {
		t.Errorf("expected zones untouched")
	}
}

// ─────────────────────────────────────────────────────────────
// Addressing
// ─────────────────────────────────────────────────────────────

func TestGetBlockAt(t *testing.T) {
	doc := twoColumns(t)
	b, ok := document.GetBlockAt(doc, domain.Selector{Zone: domain.ZoneKey("cols", "left"), Index: 0})
	if !ok || b.ID != "a" {
		t.Errorf("expected a, got %+v (ok=%v)", b, ok)
	}
	for _, sel := range []domain.Selector{
		{Zone: domain.RootZone, Index: -1},
		{Zone: domain.RootZone, Index: 2},
		{Zone: "missing:zone", Index: 0},
	} {
		if _, ok := document.GetBlockAt(doc, sel); ok {
			t.Errorf("expected %+v to miss", sel)
		}
	}
}

func TestFlatten_Order(t *testing.T) {
	doc := twoColumns(t)
	assertOrder(t, document.Flatten(doc), "cols", "a", "text")
}

func TestFindSelector(t *testing.T) {
	doc := twoColumns(t)
	sel, ok := document.FindSelector(doc, "a")
	if !ok || sel.Zone != domain.ZoneKey("cols", "left") || sel.Index != 0 {
		t.Errorf("unexpected selector %+v", sel)
	}
	if _, ok := document.FindSelector(doc, "missing"); ok {
		t.Error("expected missing id to not be found")
	}
}

// ─────────────────────────────────────────────────────────────
// Hydrate / Validate
// ─────────────────────────────────────────────────────────────

func TestHydrate_PrunesOrphans(t *testing.T) {
	payload := `{
		"content": [{"id": "cols", "type": "Columns", "props": {}}],
		"zones": {
			"cols:left": [{"id": "a", "type": "Text", "props": {}}],
			"gone:left": [{"id": "b", "type": "Text", "props": {}}]
		},
		"root": {"props": {"title": "Home"}}
	}`
	doc, err := document.Hydrate([]byte(payload))
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if _, ok := doc.Zones["gone:left"]; ok {
		t.Error("expected orphan zone to be pruned")
	}
	if doc.Root.Props["title"] != "Home" {
		t.Errorf("expected root title, got %v", doc.Root.Props)
	}
}

func TestHydrate_RejectsDuplicates(t *testing.T) {
	payload := `{"content": [{"id": "x", "type": "Text"}, {"id": "x", "type": "Text"}]}`
	if _, err := document.Hydrate([]byte(payload)); err == nil {
		t.Fatal("expected duplicate ids to fail validation")
	}
}

func TestHydrate_Empty(t *testing.T) {
	doc, err := document.Hydrate(nil)
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if doc.Content == nil || doc.Zones == nil || doc.Root.Props == nil {
		t.Errorf("expected normalized empty document, got %+v", doc)
	}
}

func TestMarshal_RoundTripsShape(t *testing.T) {
	doc := twoColumns(t)
	data, err := document.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := document.Hydrate(data)
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	assertOrder(t, document.Flatten(back), "cols", "a", "text")
}

// ─────────────────────────────────────────────────────────────
// Property: ids stay unique under random edit sequences
// ─────────────────────────────────────────────────────────────

func TestRandomOperations_KeepIDsUnique(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	doc := domain.NewDocument()
	next := 0

	zonesOf := func(d domain.Document) []domain.ZoneID {
		out := []domain.ZoneID{domain.RootZone}
		for z := range d.Zones {
			out = append(out, z)
		}
		return out
	}

	for step := 0; step < 2000; step++ {
		zones := zonesOf(doc)
		z := zones[rng.Intn(len(zones))]
		blocks, _ := doc.Zone(z)
		switch rng.Intn(4) {
		case 0:
			next++
			id := fmt.Sprintf("b%d", next)
			var owned []string
			if rng.Intn(3) == 0 {
				owned = []string{"items"}
			}
			doc, _ = document.Insert(doc, z, rng.Intn(len(blocks)+2), blk(id, "Text"), owned)
		case 1:
			doc, _ = document.Reorder(doc, z, rng.Intn(len(blocks)+1), rng.Intn(len(blocks)+1))
		case 2:
			dst := zones[rng.Intn(len(zones))]
			doc, _ = document.Move(doc, z, rng.Intn(len(blocks)+1), dst, rng.Intn(5))
		case 3:
			if rng.Intn(3) == 0 {
				doc, _ = document.Remove(doc, z, rng.Intn(len(blocks)+1))
			}
		}

		if err := document.Validate(doc); err != nil {
			t.Fatalf("step %d: invariant broken: %v", step, err)
		}
		seen := map[string]bool{}
		for _, b := range document.Flatten(doc) {
			if seen[b.ID] {
				t.Fatalf("step %d: duplicate id %s", step, b.ID)
			}
			seen[b.ID] = true
		}
	}
}
