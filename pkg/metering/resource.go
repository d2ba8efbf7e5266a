package metering

import "slices"

// Resource represents a metered tenant resource type.
type Resource string

const (
	ResourceStorage       Resource = "storage"       // bytes, gauge
	ResourceProcessing    Resource = "processing"    // minutes
	ResourceAPICalls      Resource = "apiCalls"      // calls
	ResourceTranscription Resource = "transcription" // minutes
	ResourceAITokens      Resource = "aiTokens"      // tokens
)

var allResources = []Resource{
	ResourceStorage,
	ResourceProcessing,
	ResourceAPICalls,
	ResourceTranscription,
	ResourceAITokens,
}

// AllResources returns the closed set of metered resources in a stable order.
func AllResources() []Resource {
	return slices.Clone(allResources)
}

// Valid reports whether r belongs to the closed resource set.
func (r Resource) Valid() bool {
	return slices.Contains(allResources, r)
}

// IsGauge reports whether the resource is a point-in-time level rather than a
// counter. Gauges are summed over all history, counters only inside a window.
func (r Resource) IsGauge() bool {
	return r == ResourceStorage
}

// Unit returns the human-facing unit of the resource.
func (r Resource) Unit() string {
	switch r {
	case ResourceStorage:
		return "bytes"
	case ResourceProcessing, ResourceTranscription:
		return "minutes"
	case ResourceAPICalls:
		return "calls"
	case ResourceAITokens:
		return "tokens"
	default:
		return ""
	}
}

func (r Resource) String() string {
	return string(r)
}

// ParseResource converts a string into a Resource.
func ParseResource(s string) (Resource, error) {
	r := Resource(s)
	if !r.Valid() {
		return "", ErrUnknownResource
	}
	return r, nil
}
