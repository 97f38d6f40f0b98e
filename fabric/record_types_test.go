package fabric

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestRawFabricRecord_ExtraKeysSurvive(t *testing.T) {
	t.Parallel()

	in := `{"id":"fabric_001","name":"kurti","image_main":"p/kurti.jpg","material":"silk","texture":"smooth",` +
		`"colors":["red"],"embellishments":"yes","embellishment_description":"zari",` +
		`"is_wearable_as_is":"","size_issue":"","upcycle_only":true,"notes":"",` +
		`"pattern":"paisley","weight_gsm":120}`

	var r RawFabricRecord
	if err := json.Unmarshal([]byte(in), &r); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if r.UpcycleOnly != true || r.Embellishments != "yes" {
		t.Fatalf("record=%+v", r)
	}
	if r.Extra["pattern"] != "paisley" || r.Extra["weight_gsm"] != json.Number("120") {
		t.Fatalf("Extra=%#v", r.Extra)
	}
	if _, ok := r.Extra["id"]; ok {
		t.Fatalf("known key leaked into Extra")
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out := string(b)
	if !strings.Contains(out, `"pattern":"paisley"`) || !strings.Contains(out, `"weight_gsm":120`) {
		t.Fatalf("Marshal=%s, want extra keys kept", out)
	}
	// Known keys come first, in declared order.
	if !strings.HasPrefix(out, `{"id":"fabric_001","name":"kurti"`) {
		t.Fatalf("Marshal=%s, want declared key order", out)
	}

	var again RawFabricRecord
	if err := json.Unmarshal(b, &again); err != nil {
		t.Fatalf("Unmarshal again: %v", err)
	}
	if !reflect.DeepEqual(r, again) {
		t.Fatalf("round trip changed record:\n%+v\n%+v", r, again)
	}
}

func TestRawFabricRecord_ExtraCannotShadowKnownKeys(t *testing.T) {
	t.Parallel()

	r := RawFabricRecord{ID: "fabric_001", Extra: map[string]any{"id": "other", "shade": "dark"}}
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Count(string(b), `"id"`) != 1 || !strings.Contains(string(b), `"shade":"dark"`) {
		t.Fatalf("Marshal=%s", b)
	}
}

func TestFabricRecord_MarshalEmptyLists(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(FabricRecord{ID: "fabric_001"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(b), `"colors":[]`) || !strings.Contains(string(b), `"embellishments":[]`) {
		t.Fatalf("Marshal=%s, want empty lists instead of null", b)
	}
}

func TestFabricRecord_UnmarshalCoerces(t *testing.T) {
	t.Parallel()

	var r FabricRecord
	if err := json.Unmarshal([]byte(`{"id":"fabric_002","embellishments":true,"colors":null,"sheen":"matte"}`), &r); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(r.Embellishments, []string{UnspecifiedEmbellishment}) {
		t.Fatalf("Embellishments=%v", r.Embellishments)
	}
	if r.Colors == nil || len(r.Colors) != 0 {
		t.Fatalf("Colors=%#v, want empty list", r.Colors)
	}
	if r.Extra["sheen"] != "matte" {
		t.Fatalf("Extra=%v", r.Extra)
	}

	if err := json.Unmarshal([]byte(`["not", "an", "object"]`), &r); err == nil {
		t.Fatalf("expected error for non-object record")
	}
}

func TestFabricRecord_RawIsDeepCopy(t *testing.T) {
	t.Parallel()

	r := FabricRecord{
		ID:             "fabric_003",
		Colors:         []string{"blue"},
		Embellishments: []string{"beads"},
		Extra:          map[string]any{"k": "v"},
	}
	raw := r.Raw()
	raw.Colors[0] = "green"
	raw.Embellishments.([]string)[0] = "sequins"
	raw.Extra["k"] = "changed"

	if r.Colors[0] != "blue" || r.Embellishments[0] != "beads" || r.Extra["k"] != "v" {
		t.Fatalf("Raw shares memory with the record: %+v", r)
	}

	back := NormalizeRecord(FabricRecord{ID: "x"}.Raw(), DefaultRules())
	if back.Colors == nil || back.Embellishments == nil {
		t.Fatalf("NormalizeRecord(Raw()) = %+v, want empty lists", back)
	}
}
