package types

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

// SchemaVersion is the document schema written by this build.
const SchemaVersion = "1.0"

// Document is the persisted state: every ticket keyed by id plus store metadata.
type Document struct {
	Version  string             `json:"version"`
	Metadata Metadata           `json:"metadata"`
	Tickets  map[string]*Ticket `json:"tickets"`
}

// Metadata carries store-wide timestamps.
type Metadata struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDocument returns an empty document stamped with now.
func NewDocument(now time.Time) *Document {
	now = now.UTC().Truncate(time.Second)
	return &Document{
		Version:  SchemaVersion,
		Metadata: Metadata{CreatedAt: now, UpdatedAt: now},
		Tickets:  make(map[string]*Ticket),
	}
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	c := &Document{
		Version:  d.Version,
		Metadata: d.Metadata,
		Tickets:  make(map[string]*Ticket, len(d.Tickets)),
	}
	for id, t := range d.Tickets {
		c.Tickets[id] = t.Clone()
	}
	return c
}

// Normalize applies defaults after decoding so older or hand-edited documents
// are usable.
func (d *Document) Normalize() {
	if d.Version == "" {
		d.Version = SchemaVersion
	}
	if d.Tickets == nil {
		d.Tickets = make(map[string]*Ticket)
	}
	for id, t := range d.Tickets {
		if t == nil {
			delete(d.Tickets, id)
			continue
		}
		if t.ID == "" {
			t.ID = id
		}
		t.SetDefaults()
	}
}

// List returns the tickets ordered by phase, then id.
func (d *Document) List() []*Ticket {
	tickets := make([]*Ticket, 0, len(d.Tickets))
	for _, t := range d.Tickets {
		tickets = append(tickets, t)
	}
	SortTickets(tickets)
	return tickets
}

// IDs returns all ticket ids in ascending order.
func (d *Document) IDs() []string {
	ids := make([]string, 0, len(d.Tickets))
	for id := range d.Tickets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Edges returns the blocked_by adjacency list (ticket -> predecessors).
func (d *Document) Edges() map[string][]string {
	edges := make(map[string][]string, len(d.Tickets))
	for id, t := range d.Tickets {
		edges[id] = append([]string{}, t.BlockedBy...)
	}
	return edges
}

// CheckVersion rejects documents written with an incompatible major schema version.
func CheckVersion(version string) error {
	doc := canonicalVersion(version)
	own := canonicalVersion(SchemaVersion)
	if !semver.IsValid(doc) {
		return fmt.Errorf("invalid schema version %q", version)
	}
	if semver.Major(doc) != semver.Major(own) {
		return fmt.Errorf("schema version %s is not compatible with %s", version, SchemaVersion)
	}
	return nil
}

func canonicalVersion(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
