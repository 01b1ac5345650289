package storage

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

// readOnlyFields are addressable but never writable through Update.
var readOnlyFields = map[string]string{
	"id":         "id is immutable",
	"phase":      "phase is derived from dependencies",
	"blocks":     "blocks is derived from blocked_by",
	"blocked_by": "use AddDependency to change dependencies",
}

// fieldSetters maps each writable field path to its parser.
var fieldSetters = map[string]func(t *types.Ticket, v string) error{
	"summary": func(t *types.Ticket, v string) error {
		t.Summary = v
		return nil
	},
	"area": func(t *types.Ticket, v string) error {
		t.Area = v
		return nil
	},
	"priority": func(t *types.Ticket, v string) error {
		p := types.Priority(strings.ToLower(v))
		if !p.IsValid() {
			return fmt.Errorf("%w: priority %q", ErrInvalidValue, v)
		}
		t.Priority = p
		return nil
	},
	"workstream": func(t *types.Ticket, v string) error {
		t.Workstream = v
		return nil
	},
	"plan.status": func(t *types.Ticket, v string) error {
		s := types.PlanStatus(v)
		if !s.IsValid() {
			return fmt.Errorf("%w: plan.status %q", ErrInvalidValue, v)
		}
		t.Plan.Status = s
		return nil
	},
	"plan.approved_at": func(t *types.Ticket, v string) error {
		if isNull(v) {
			t.Plan.ApprovedAt = nil
			return nil
		}
		at, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fmt.Errorf("%w: plan.approved_at %q: want RFC 3339", ErrInvalidValue, v)
		}
		at = at.UTC()
		t.Plan.ApprovedAt = &at
		return nil
	},
	"plan.artifact": func(t *types.Ticket, v string) error {
		t.Plan.Artifact = v
		return nil
	},
	"build.status": func(t *types.Ticket, v string) error {
		s := types.BuildStatus(v)
		if !s.IsValid() {
			return fmt.Errorf("%w: build.status %q", ErrInvalidValue, v)
		}
		t.Build.Status = s
		return nil
	},
	"build.branch": func(t *types.Ticket, v string) error {
		t.Build.Branch = nullable(v)
		return nil
	},
	"build.retry_count": func(t *types.Ticket, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: build.retry_count %q", ErrInvalidValue, v)
		}
		t.Build.RetryCount = n
		return nil
	},
	"build.last_error": func(t *types.Ticket, v string) error {
		t.Build.LastError = v
		return nil
	},
	"pr.url": func(t *types.Ticket, v string) error {
		t.PR.URL = nullable(v)
		return nil
	},
	"pr.status": func(t *types.Ticket, v string) error {
		if isNull(v) {
			t.PR.Status = types.PRNone
			return nil
		}
		s := types.PRStatus(v)
		if !s.IsValid() {
			return fmt.Errorf("%w: pr.status %q", ErrInvalidValue, v)
		}
		t.PR.Status = s
		return nil
	},
}

// SetField parses value and assigns it to the field at path.
func SetField(t *types.Ticket, path, value string) error {
	if reason, ok := readOnlyFields[path]; ok {
		return fmt.Errorf("%w: %s (%s)", ErrInvalidField, path, reason)
	}
	set, ok := fieldSetters[path]
	if !ok {
		return fmt.Errorf("%w: %s (valid: %s)", ErrInvalidField, path, strings.Join(FieldPaths(), ", "))
	}
	return set(t, value)
}

// FieldPaths lists the writable field paths in sorted order.
func FieldPaths() []string {
	paths := make([]string, 0, len(fieldSetters))
	for p := range fieldSetters {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func isNull(v string) bool {
	return v == "" || v == "null"
}

func nullable(v string) *string {
	if isNull(v) {
		return nil
	}
	return &v
}
