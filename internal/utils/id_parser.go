// Package utils provides helpers for ticket id normalisation and resolution.
package utils

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

// NormalizeID upper-cases an id and trims surrounding whitespace, so
// "proj-101 " and "PROJ-101" address the same ticket.
func NormalizeID(input string) string {
	return strings.ToUpper(strings.TrimSpace(input))
}

// ResolvePartialID resolves a potentially partial ticket id to a full id.
// Supports:
//   - Full IDs: "PROJ-101" or "proj-101" → "PROJ-101"
//   - Number only: "101" → "PROJ-101" (if unique)
//   - Substrings: "J-10" → "PROJ-101" (if unique)
//
// Returns an error if no ticket matches or the input is ambiguous.
func ResolvePartialID(doc *types.Document, input string) (string, error) {
	normalized := NormalizeID(input)
	if normalized == "" {
		return "", fmt.Errorf("empty ticket id")
	}

	// Exact match, with or without case folding
	if _, ok := doc.Tickets[input]; ok {
		return input, nil
	}
	if _, ok := doc.Tickets[normalized]; ok {
		return normalized, nil
	}

	var numberMatches, substringMatches []string
	for id := range doc.Tickets {
		upper := strings.ToUpper(id)
		if suffix := idSuffix(upper); suffix == normalized {
			numberMatches = append(numberMatches, id)
		}
		if strings.Contains(upper, normalized) {
			substringMatches = append(substringMatches, id)
		}
	}

	// Prefer an exact number match over substring matches
	for _, matches := range [][]string{numberMatches, substringMatches} {
		switch len(matches) {
		case 0:
			continue
		case 1:
			return matches[0], nil
		default:
			sort.Strings(matches)
			return "", fmt.Errorf("ambiguous ID %q matches %d tickets: %v\nUse more characters to disambiguate", input, len(matches), matches)
		}
	}
	return "", fmt.Errorf("no ticket found matching %q", input)
}

// ResolvePartialIDs resolves multiple potentially partial ticket ids.
func ResolvePartialIDs(doc *types.Document, inputs []string) ([]string, error) {
	resolved := make([]string, 0, len(inputs))
	for _, input := range inputs {
		fullID, err := ResolvePartialID(doc, input)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, fullID)
	}
	return resolved, nil
}

func idSuffix(id string) string {
	if idx := strings.LastIndex(id, "-"); idx >= 0 {
		return id[idx+1:]
	}
	return id
}
