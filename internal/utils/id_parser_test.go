package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

func testDocument(ids ...string) *types.Document {
	doc := types.NewDocument(time.Now())
	for _, id := range ids {
		doc.Tickets[id] = types.NewTicket(id)
	}
	return doc
}

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"PROJ-101", "PROJ-101"},
		{"proj-101", "PROJ-101"},
		{"  api-7 ", "API-7"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeID(tt.input); got != tt.want {
			t.Errorf("NormalizeID(%q) = %q; want %q", tt.input, got, tt.want)
		}
	}
}

func TestResolvePartialID(t *testing.T) {
	doc := testDocument("PROJ-101", "PROJ-102", "PROJ-1010", "WEB-201", "mixed-Case-5")

	tests := []struct {
		name        string
		input       string
		expected    string
		shouldError bool
		errorMsg    string
	}{
		{name: "exact match", input: "PROJ-101", expected: "PROJ-101"},
		{name: "case-insensitive match", input: "proj-102", expected: "PROJ-102"},
		{name: "number only", input: "201", expected: "WEB-201"},
		{name: "number beats substring", input: "101", expected: "PROJ-101"},
		{name: "unique substring", input: "EB-2", expected: "WEB-201"},
		{name: "exact id keeps original case", input: "mixed-Case-5", expected: "mixed-Case-5"},
		{name: "ambiguous substring", input: "PROJ-10", shouldError: true, errorMsg: "ambiguous"},
		{name: "nonexistent ticket", input: "PROJ-999", shouldError: true, errorMsg: "no ticket found"},
		{name: "empty input", input: " ", shouldError: true, errorMsg: "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ResolvePartialID(doc, tt.input)
			if tt.shouldError {
				if err == nil {
					t.Fatalf("ResolvePartialID(%q) expected error containing %q, got nil", tt.input, tt.errorMsg)
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("ResolvePartialID(%q) error = %q; want error containing %q", tt.input, err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolvePartialID(%q) unexpected error: %v", tt.input, err)
			}
			if result != tt.expected {
				t.Errorf("ResolvePartialID(%q) = %q; want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestResolvePartialIDs(t *testing.T) {
	doc := testDocument("PROJ-101", "PROJ-102")
	got, err := ResolvePartialIDs(doc, []string{"101", "proj-102"})
	if err != nil {
		t.Fatalf("ResolvePartialIDs failed: %v", err)
	}
	if len(got) != 2 || got[0] != "PROJ-101" || got[1] != "PROJ-102" {
		t.Errorf("ResolvePartialIDs = %v", got)
	}
	if _, err := ResolvePartialIDs(doc, []string{"101", "nope"}); err == nil {
		t.Error("expected error for unknown id")
	}
}

func TestPrefixFromName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"auth-service", "AUTH"},
		{"my-prd", "MYPR"},
		{"db", "DB"},
		{"2024_plan", "PLAN"},
		{"___", "TKT"},
	}
	for _, tt := range tests {
		if got := PrefixFromName(tt.name); got != tt.want {
			t.Errorf("PrefixFromName(%q) = %q; want %q", tt.name, got, tt.want)
		}
	}
}
