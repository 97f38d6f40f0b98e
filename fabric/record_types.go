package fabric

import (
	"bytes"
	"encoding/json"
	"maps"
)

// FabricFields is the model-described part of a catalog entry, as recovered by ExtractRecord.
type FabricFields struct {
	Material string   `json:"material"`
	Texture  string   `json:"texture"`
	Colors   []string `json:"colors"`

	// Embellishments is kept exactly as the model produced it (bool, nil, string, list, ...).
	// NormalizeRecords coerces it into a list of strings.
	Embellishments any `json:"embellishments"`

	EmbellishmentDescription string `json:"embellishment_description"`

	// Extra holds keys the model returned that the pipeline does not interpret.
	Extra map[string]any `json:"extra,omitempty"`
}

// RawFabricRecord is a persisted catalog entry before normalization.
// Unknown keys survive a load/save round trip through Extra.
type RawFabricRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ImageMain string `json:"image_main"`

	Material                 string   `json:"material"`
	Texture                  string   `json:"texture"`
	Colors                   []string `json:"colors"`
	Embellishments           any      `json:"embellishments"`
	EmbellishmentDescription string   `json:"embellishment_description"`

	IsWearableAsIs any    `json:"is_wearable_as_is"`
	SizeIssue      any    `json:"size_issue"`
	UpcycleOnly    any    `json:"upcycle_only"`
	Notes          string `json:"notes"`

	// Degraded marks entries whose model output could not be parsed by any strategy.
	Degraded bool `json:"degraded,omitempty"`

	Extra map[string]any `json:"-"`
}

// FabricRecord is a canonical catalog entry: Embellishments is always a list of strings.
type FabricRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ImageMain string `json:"image_main"`

	Material                 string   `json:"material"`
	Texture                  string   `json:"texture"`
	Colors                   []string `json:"colors"`
	Embellishments           []string `json:"embellishments"`
	EmbellishmentDescription string   `json:"embellishment_description"`

	IsWearableAsIs any    `json:"is_wearable_as_is"`
	SizeIssue      any    `json:"size_issue"`
	UpcycleOnly    any    `json:"upcycle_only"`
	Notes          string `json:"notes"`

	Degraded bool `json:"degraded,omitempty"`

	Extra map[string]any `json:"-"`
}

// recordKeys are the JSON keys owned by the record structs; everything else lands in Extra.
var recordKeys = []string{
	"id", "name", "image_main",
	"material", "texture", "colors", "embellishments", "embellishment_description",
	"is_wearable_as_is", "size_issue", "upcycle_only", "notes", "degraded",
}

// fieldKeys are the keys the vision model is asked to return.
var fieldKeys = []string{"material", "texture", "colors", "embellishments", "embellishment_description"}

// Raw converts a canonical record back into the raw shape, e.g. to normalize it again.
func (r FabricRecord) Raw() RawFabricRecord {
	var embellishments any
	if r.Embellishments != nil {
		embellishments = append([]string{}, r.Embellishments...)
	}
	return RawFabricRecord{
		ID:                       r.ID,
		Name:                     r.Name,
		ImageMain:                r.ImageMain,
		Material:                 r.Material,
		Texture:                  r.Texture,
		Colors:                   append([]string{}, r.Colors...),
		Embellishments:           embellishments,
		EmbellishmentDescription: r.EmbellishmentDescription,
		IsWearableAsIs:           r.IsWearableAsIs,
		SizeIssue:                r.SizeIssue,
		UpcycleOnly:              r.UpcycleOnly,
		Notes:                    r.Notes,
		Degraded:                 r.Degraded,
		Extra:                    maps.Clone(r.Extra),
	}
}

// RawRecords converts canonical records back into raw records.
func RawRecords(records []FabricRecord) []RawFabricRecord {
	out := make([]RawFabricRecord, 0, len(records))
	for _, r := range records {
		out = append(out, r.Raw())
	}
	return out
}

func (r RawFabricRecord) MarshalJSON() ([]byte, error) {
	type alias RawFabricRecord
	return marshalWithExtra(alias(r), r.Extra)
}

func (r *RawFabricRecord) UnmarshalJSON(b []byte) error {
	m, err := decodeJSONObject(b)
	if err != nil {
		return err
	}
	*r = rawRecordFromMap(m)
	return nil
}

func (r FabricRecord) MarshalJSON() ([]byte, error) {
	type alias FabricRecord
	if r.Colors == nil {
		r.Colors = []string{}
	}
	if r.Embellishments == nil {
		r.Embellishments = []string{}
	}
	return marshalWithExtra(alias(r), r.Extra)
}

// UnmarshalJSON accepts any record shape and coerces embellishments; typo rules are not applied.
func (r *FabricRecord) UnmarshalJSON(b []byte) error {
	var raw RawFabricRecord
	if err := raw.UnmarshalJSON(b); err != nil {
		return err
	}
	*r = canonicalFromRaw(raw)
	return nil
}

func rawRecordFromMap(m map[string]any) RawFabricRecord {
	f := fieldsFromMap(m)
	r := RawFabricRecord{
		ID:                       stringField(m, "id"),
		Name:                     stringField(m, "name"),
		ImageMain:                stringField(m, "image_main"),
		Material:                 f.Material,
		Texture:                  f.Texture,
		Colors:                   f.Colors,
		Embellishments:           f.Embellishments,
		EmbellishmentDescription: f.EmbellishmentDescription,
		IsWearableAsIs:           m["is_wearable_as_is"],
		SizeIssue:                m["size_issue"],
		UpcycleOnly:              m["upcycle_only"],
		Notes:                    stringField(m, "notes"),
		Degraded:                 boolField(m, "degraded"),
	}
	r.Extra = extraKeys(m, recordKeys)
	return r
}

// marshalWithExtra marshals v and splices the extra keys (minus any owned by v) onto the end of
// the object, so known keys keep their declared order.
func marshalWithExtra(v any, extra map[string]any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	rest := make(map[string]any, len(extra))
	for k, val := range extra {
		if isRecordKey(k) {
			continue
		}
		rest[k] = val
	}
	if len(rest) == 0 {
		return b, nil
	}
	eb, err := json.Marshal(rest)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(b) + len(eb))
	buf.Write(b[:len(b)-1])
	buf.WriteByte(',')
	buf.Write(eb[1:])
	return buf.Bytes(), nil
}

func isRecordKey(k string) bool {
	for _, known := range recordKeys {
		if k == known {
			return true
		}
	}
	return false
}
