package source

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/utils"
)

var (
	// ## PROJ-101: Summary  or  ### PROJ-101 Summary
	ticketHeading = regexp.MustCompile(`(?m)^#{2,3}\s+([A-Z]+-\d+)[:\s]+(.+)$`)
	sectionH2     = regexp.MustCompile(`(?m)^##\s+(.+)$`)

	priorityLine   = regexp.MustCompile(`(?i)priority:\s*(critical|high|medium|low)`)
	blockedByLine  = regexp.MustCompile(`blocked_by:\s*\[([^\]]*)\]`)
	areaLine       = regexp.MustCompile(`(?i)area:\s*(\w+)`)
	workstreamLine = regexp.MustCompile(`(?i)workstream:\s*([\w.-]+)`)
)

// Sections that never become tickets in a heading-only document.
var skipSections = map[string]bool{
	"overview":          true,
	"introduction":      true,
	"summary":           true,
	"references":        true,
	"appendix":          true,
	"changelog":         true,
	"table of contents": true,
}

// ParseMarkdown extracts tickets from a PRD. Explicit ticket headings win;
// without any, every H2 section becomes a ticket numbered from its position.
func ParseMarkdown(name, content string) []*types.Ticket {
	matches := ticketHeading.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return parseSections(name, content)
	}

	tickets := make([]*types.Ticket, 0, len(matches))
	for i, m := range matches {
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		body := content[m[1]:end]

		t := types.NewTicket(content[m[2]:m[3]])
		t.Summary = strings.TrimSpace(content[m[4]:m[5]])
		if p := priorityLine.FindStringSubmatch(body); p != nil {
			t.Priority = types.Priority(strings.ToLower(p[1]))
		}
		if a := areaLine.FindStringSubmatch(body); a != nil {
			t.Area = a[1]
		}
		if w := workstreamLine.FindStringSubmatch(body); w != nil {
			t.Workstream = w[1]
		}
		if b := blockedByLine.FindStringSubmatch(body); b != nil {
			t.BlockedBy = splitList(b[1])
		}
		tickets = append(tickets, t)
	}
	return tickets
}

func parseSections(name, content string) []*types.Ticket {
	prefix := utils.PrefixFromName(name)
	var tickets []*types.Ticket
	for i, m := range sectionH2.FindAllStringSubmatch(content, -1) {
		title := strings.TrimSpace(m[1])
		if skipSections[strings.ToLower(title)] {
			continue
		}
		t := types.NewTicket(fmt.Sprintf("%s-%d", prefix, (i+1)*100+1))
		t.Summary = title
		tickets = append(tickets, t)
	}
	return tickets
}

// splitList parses the inside of "[A-1, 'B-2', \"C-3\"]".
func splitList(s string) []string {
	out := []string{}
	for _, item := range strings.Split(s, ",") {
		item = strings.Trim(strings.TrimSpace(item), `'"`)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
