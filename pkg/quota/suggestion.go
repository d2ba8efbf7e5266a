package quota

import (
	"fmt"

	"github.com/dmitrymomot/meterkit/pkg/metering"
)

// Suggestion returns the remediation text shown to a tenant that ran out of r.
func Suggestion(r metering.Resource) string {
	switch r {
	case metering.ResourceStorage:
		return "Delete unused files to free up space, or upgrade your plan for more storage."
	case metering.ResourceTranscription:
		return "Wait for your next billing cycle, or upgrade your plan for more transcription minutes."
	case metering.ResourceAITokens:
		return "Reduce prompt sizes or batch requests, or upgrade your plan for a larger AI token allowance."
	default:
		return "Upgrade your plan to raise this limit."
	}
}

func denialReason(c Check) string {
	return fmt.Sprintf("%s quota exceeded: %s of %s %s would be used (%.0f%%)",
		c.Resource, c.Projected.String(), c.Limit.String(), c.Resource.Unit(), c.PercentUsed)
}
