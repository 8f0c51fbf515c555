package domain

import (
	"sort"

	"github.com/bwmarrin/snowflake"
)

// Resolver is an immutable line id to customer lookup built once per run.
type Resolver struct {
	lines     map[string]LineMapping
	customers []snowflake.ID
}

// NewResolver indexes mappings by line id. The first mapping for a line wins.
func NewResolver(mappings []LineMapping) *Resolver {
	lines := make(map[string]LineMapping, len(mappings))
	seen := make(map[snowflake.ID]struct{})
	customers := make([]snowflake.ID, 0)
	for _, m := range mappings {
		if m.LineID == "" {
			continue
		}
		if _, ok := lines[m.LineID]; ok {
			continue
		}
		lines[m.LineID] = m
		if _, ok := seen[m.CustomerID]; !ok {
			seen[m.CustomerID] = struct{}{}
			customers = append(customers, m.CustomerID)
		}
	}
	sort.Slice(customers, func(i, j int) bool { return customers[i] < customers[j] })
	return &Resolver{lines: lines, customers: customers}
}

func (r *Resolver) Lookup(lineID string) (LineMapping, bool) {
	if r == nil || lineID == "" {
		return LineMapping{}, false
	}
	m, ok := r.lines[lineID]
	return m, ok
}

func (r *Resolver) Len() int {
	if r == nil {
		return 0
	}
	return len(r.lines)
}

// CustomerIDs returns the distinct customers reachable through the mapping.
func (r *Resolver) CustomerIDs() []snowflake.ID {
	if r == nil {
		return nil
	}
	out := make([]snowflake.ID, len(r.customers))
	copy(out, r.customers)
	return out
}
