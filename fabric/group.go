package fabric

import (
	"encoding/json"
	"strings"
)

// Group is a set of catalog records showing views of the same item.
type Group struct {
	Key     string         `json:"key"`
	Records []FabricRecord `json:"records"`
}

// Groups is an ordered collection of groups: keys appear in first-seen order.
type Groups struct {
	list  []Group
	index map[string]int
}

// GroupKey strips the first suffix in list order that name ends with. A name matching no suffix
// is its own key.
func GroupKey(name string, suffixes []string) string {
	for _, suf := range suffixes {
		if suf != "" && strings.HasSuffix(name, suf) {
			return strings.TrimSuffix(name, suf)
		}
	}
	return name
}

// GroupRecords partitions records by GroupKey. Record order is kept within each group.
func GroupRecords(records []FabricRecord, suffixes []string) Groups {
	g := Groups{index: make(map[string]int)}
	for _, r := range records {
		key := GroupKey(r.Name, suffixes)
		i, ok := g.index[key]
		if !ok {
			i = len(g.list)
			g.index[key] = i
			g.list = append(g.list, Group{Key: key, Records: []FabricRecord{}})
		}
		g.list[i].Records = append(g.list[i].Records, r)
	}
	return g
}

func (g Groups) Len() int { return len(g.list) }

// All returns the groups in order. The slice is a copy; records are shared.
func (g Groups) All() []Group {
	return append([]Group{}, g.list...)
}

func (g Groups) Keys() []string {
	keys := make([]string, 0, len(g.list))
	for _, grp := range g.list {
		keys = append(keys, grp.Key)
	}
	return keys
}

func (g Groups) Lookup(key string) (Group, bool) {
	i, ok := g.index[key]
	if !ok {
		return Group{}, false
	}
	return g.list[i], true
}

// MarshalJSON encodes the groups as an ordered array.
func (g Groups) MarshalJSON() ([]byte, error) {
	list := g.list
	if list == nil {
		list = []Group{}
	}
	return json.Marshal(list)
}

// Match returns the group whose key equals query, or else every group whose key contains query
// case-insensitively, in order.
func (g Groups) Match(query string) []Group {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if grp, ok := g.Lookup(query); ok {
		return []Group{grp}
	}
	q := strings.ToLower(query)
	var out []Group
	for _, grp := range g.list {
		if strings.Contains(strings.ToLower(grp.Key), q) {
			out = append(out, grp)
		}
	}
	return out
}
