package fabric

import (
	"maps"
	"strings"
)

// UnspecifiedEmbellishment stands in for embellishments the model only confirmed as present.
const UnspecifiedEmbellishment = "unspecified embellishment"

// NormalizeRecords converts raw catalog entries into canonical records, preserving order.
func NormalizeRecords(records []RawFabricRecord, rules Rules) []FabricRecord {
	out := make([]FabricRecord, 0, len(records))
	for _, r := range records {
		out = append(out, NormalizeRecord(r, rules))
	}
	return out
}

// NormalizeRecord coerces embellishments, cleans colors and repairs known typos in the name and
// image path. It is idempotent for any Rules that pass Validate.
func NormalizeRecord(r RawFabricRecord, rules Rules) FabricRecord {
	out := canonicalFromRaw(r)
	out.Name = rules.FixTypos(out.Name)
	out.ImageMain = rules.FixTypos(out.ImageMain)
	out.Colors = dedupeStrings(out.Colors)
	return out
}

// CoerceEmbellishments maps the model's embellishments value onto a list of strings:
//
//	true, "yes"          -> ["unspecified embellishment"]
//	false, "none", nil   -> []
//	other string         -> [trimmed string]
//	list                 -> its string elements, trimmed
//	anything else        -> []
func CoerceEmbellishments(v any) []string {
	switch e := v.(type) {
	case bool:
		if e {
			return []string{UnspecifiedEmbellishment}
		}
		return []string{}
	case nil:
		return []string{}
	case string:
		switch e {
		case "yes":
			return []string{UnspecifiedEmbellishment}
		case "none":
			return []string{}
		}
		return []string{strings.TrimSpace(e)}
	case []string:
		out := make([]string, 0, len(e))
		for _, s := range e {
			out = append(out, strings.TrimSpace(s))
		}
		return out
	case []any:
		out := make([]string, 0, len(e))
		for _, item := range e {
			if s, ok := item.(string); ok {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	default:
		return []string{}
	}
}

// canonicalFromRaw only coerces the representation; it applies no rules.
func canonicalFromRaw(r RawFabricRecord) FabricRecord {
	colors := r.Colors
	if colors == nil {
		colors = []string{}
	}
	return FabricRecord{
		ID:                       r.ID,
		Name:                     r.Name,
		ImageMain:                r.ImageMain,
		Material:                 r.Material,
		Texture:                  r.Texture,
		Colors:                   append([]string{}, colors...),
		Embellishments:           CoerceEmbellishments(r.Embellishments),
		EmbellishmentDescription: r.EmbellishmentDescription,
		IsWearableAsIs:           r.IsWearableAsIs,
		SizeIssue:                r.SizeIssue,
		UpcycleOnly:              r.UpcycleOnly,
		Notes:                    r.Notes,
		Degraded:                 r.Degraded,
		Extra:                    maps.Clone(r.Extra),
	}
}

// dedupeStrings trims, drops empties and removes case-insensitive duplicates, keeping the first
// spelling seen.
func dedupeStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
