// Package source turns planning documents (markdown PRDs or YAML ticket
// lists) into tickets for a batch create.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

// ErrParse marks a source document that cannot be turned into tickets.
var ErrParse = errors.New("parse error")

// Format is a source document format.
type Format string

// Supported formats
const (
	FormatMarkdown Format = "markdown"
	FormatYAML     Format = "yaml"
)

// DetectFormat picks the parser from the file extension. Anything that is not
// .yaml or .yml is read as markdown.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatMarkdown
}

// ParseFile reads path and returns its tickets in document order.
func ParseFile(path string) ([]*types.Ticket, error) {
	data, err := os.ReadFile(path) // #nosec G304 - user-supplied source document
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read source: %w", ErrParse, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Parse(DetectFormat(path), name, data)
}

// Parse decodes data in the given format. name is the document stem, used to
// derive ids for markdown documents without explicit ticket headings.
func Parse(format Format, name string, data []byte) ([]*types.Ticket, error) {
	var (
		tickets []*types.Ticket
		err     error
	)
	switch format {
	case FormatYAML:
		tickets, err = ParseYAML(data)
	case FormatMarkdown:
		tickets = ParseMarkdown(name, string(data))
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrParse, format)
	}
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, fmt.Errorf("%w: no tickets found in %s", ErrParse, name)
	}
	if err := checkDuplicates(tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

func checkDuplicates(tickets []*types.Ticket) error {
	seen := make(map[string]bool, len(tickets))
	var dupes []string
	for _, t := range tickets {
		if seen[t.ID] {
			dupes = append(dupes, t.ID)
			continue
		}
		seen[t.ID] = true
	}
	if len(dupes) > 0 {
		return fmt.Errorf("%w: duplicate ticket ids: %s", ErrParse, strings.Join(dupes, ", "))
	}
	return nil
}
