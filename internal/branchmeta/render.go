package branchmeta

import (
	"fmt"
	"strings"
)

const (
	// PendingPreviewLimitConstant caps how many pending todo texts the summary lists.
	PendingPreviewLimitConstant = 3

	headerLineTemplateConstant       = "%s  %s (Owner: %s)"
	statusLineTemplateConstant       = "   Status: %s"
	descriptionLineTemplateConstant  = "   Description: %s"
	pendingCountLineTemplateConstant = "   Pending Tasks: %d"
	pendingItemLineTemplateConstant  = "      - %s"
	moreMarkerLineConstant           = "      ... and more"
	descriptionPlaceholderConstant   = "(No description)"
	unknownStatusIconConstant        = "❓"
	lineSeparatorConstant            = "\n"
)

var statusIcons = map[Status]string{
	StatusWorkInProgress: "🚧",
	StatusBlocked:        "⛔",
	StatusReview:         "👀",
	StatusSafe:           "✅",
}

// StatusIcon returns the glyph shown next to a status in summaries.
func StatusIcon(status Status) string {
	icon, exists := statusIcons[status]
	if !exists {
		return unknownStatusIconConstant
	}
	return icon
}

// RenderContext formats a branch record as a multi-line summary. It returns an
// empty string when present is false so callers can choose their own message.
func RenderContext(branchName string, record BranchRecord, present bool) string {
	if !present {
		return ""
	}

	owner := strings.TrimSpace(record.Owner)
	if len(owner) == 0 {
		owner = UnknownOwnerConstant
	}

	status := record.Status
	if !status.Valid() {
		status = StatusWorkInProgress
	}

	description := record.Description
	if len(strings.TrimSpace(description)) == 0 {
		description = descriptionPlaceholderConstant
	}

	outputLines := []string{
		fmt.Sprintf(headerLineTemplateConstant, StatusIcon(status), branchName, owner),
		fmt.Sprintf(statusLineTemplateConstant, status),
		fmt.Sprintf(descriptionLineTemplateConstant, description),
	}

	pendingTodos := record.PendingTodos()
	if len(pendingTodos) > 0 {
		outputLines = append(outputLines, fmt.Sprintf(pendingCountLineTemplateConstant, len(pendingTodos)))
		for todoIndex, todoItem := range pendingTodos {
			if todoIndex == PendingPreviewLimitConstant {
				outputLines = append(outputLines, moreMarkerLineConstant)
				break
			}
			outputLines = append(outputLines, fmt.Sprintf(pendingItemLineTemplateConstant, todoItem.Text))
		}
	}

	return strings.Join(outputLines, lineSeparatorConstant)
}
