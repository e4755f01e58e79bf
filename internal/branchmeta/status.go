package branchmeta

import (
	"errors"
	"fmt"
	"strings"
)

const (
	statusWorkInProgressStringConstant = "WIP"
	statusBlockedStringConstant        = "BLOCKED"
	statusReviewStringConstant         = "REVIEW"
	statusSafeStringConstant           = "SAFE"
	invalidStatusMessageConstant       = "invalid status"
	invalidStatusTemplateConstant      = "%s %q: expected one of %s"
	statusListSeparatorConstant        = ", "
)

// Status enumerates the lifecycle states a branch record can carry.
type Status string

// Supported statuses.
const (
	StatusWorkInProgress Status = Status(statusWorkInProgressStringConstant)
	StatusBlocked        Status = Status(statusBlockedStringConstant)
	StatusReview         Status = Status(statusReviewStringConstant)
	StatusSafe           Status = Status(statusSafeStringConstant)
)

// ErrInvalidStatus indicates a status value outside the supported set.
var ErrInvalidStatus = errors.New(invalidStatusMessageConstant)

var supportedStatuses = []Status{StatusWorkInProgress, StatusBlocked, StatusReview, StatusSafe}

// InvalidStatusError reports the rejected value together with the accepted ones.
type InvalidStatusError struct {
	Value string
}

// Error describes the rejected status.
func (statusError InvalidStatusError) Error() string {
	return fmt.Sprintf(invalidStatusTemplateConstant, invalidStatusMessageConstant, statusError.Value, strings.Join(SupportedStatusNames(), statusListSeparatorConstant))
}

// Is allows errors.Is to match ErrInvalidStatus.
func (statusError InvalidStatusError) Is(target error) bool {
	return target == ErrInvalidStatus
}

// SupportedStatusNames returns the accepted statuses as strings.
func SupportedStatusNames() []string {
	statusNames := make([]string, 0, len(supportedStatuses))
	for _, status := range supportedStatuses {
		statusNames = append(statusNames, string(status))
	}
	return statusNames
}

// ParseStatus converts user input into a Status. Matching ignores surrounding
// whitespace and letter case.
func ParseStatus(rawStatus string) (Status, error) {
	normalizedStatus := Status(strings.ToUpper(strings.TrimSpace(rawStatus)))
	if !normalizedStatus.Valid() {
		return "", InvalidStatusError{Value: rawStatus}
	}
	return normalizedStatus, nil
}

// Valid reports whether the status belongs to the supported set.
func (status Status) Valid() bool {
	for _, supportedStatus := range supportedStatuses {
		if status == supportedStatus {
			return true
		}
	}
	return false
}

// String returns the persisted representation.
func (status Status) String() string {
	return string(status)
}
