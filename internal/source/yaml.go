package source

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

// yamlDocument is the YAML source layout:
//
//	workstream: auth
//	tickets:
//	  - id: AUTH-101
//	    summary: Login endpoint
//	    priority: high
//	    blocked_by: [AUTH-100]
type yamlDocument struct {
	Workstream string       `yaml:"workstream"`
	Tickets    []yamlTicket `yaml:"tickets"`
}

type yamlTicket struct {
	ID         string   `yaml:"id"`
	Summary    string   `yaml:"summary"`
	Area       string   `yaml:"area"`
	Priority   string   `yaml:"priority"`
	Workstream string   `yaml:"workstream"`
	BlockedBy  []string `yaml:"blocked_by"`
}

// ParseYAML decodes a YAML ticket list. Unknown keys are rejected so typos do
// not silently drop dependencies.
func ParseYAML(data []byte) ([]*types.Ticket, error) {
	var doc yamlDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	tickets := make([]*types.Ticket, 0, len(doc.Tickets))
	for i, yt := range doc.Tickets {
		id := strings.TrimSpace(yt.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: ticket %d has no id", ErrParse, i+1)
		}
		t := types.NewTicket(id)
		t.Summary = strings.TrimSpace(yt.Summary)
		t.Area = yt.Area
		t.Workstream = doc.Workstream
		if yt.Workstream != "" {
			t.Workstream = yt.Workstream
		}
		if yt.Priority != "" {
			t.Priority = types.Priority(strings.ToLower(yt.Priority))
			if !t.Priority.IsValid() {
				return nil, fmt.Errorf("%w: %s: invalid priority %q", ErrParse, id, yt.Priority)
			}
		}
		if yt.BlockedBy != nil {
			t.BlockedBy = yt.BlockedBy
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}
