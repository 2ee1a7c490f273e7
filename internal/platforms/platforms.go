package platforms

import (
	"context"
	"fmt"
	"strings"

	"reagent/server/internal/models"
)

// Fetcher is one listing platform integration. Implementations must be safe
// to call concurrently and must report failure with *SourceError rather
// than panicking on bad upstream data.
type Fetcher interface {
	Name() string

	// Enabled reports whether the platform is configured; a disabled
	// platform is skipped entirely during aggregation.
	Enabled() bool

	Search(ctx context.Context, criteria models.SearchCriteria) ([]models.Property, error)
}

// SourceError wraps a per-platform fetch failure. Aggregation absorbs these:
// a failing platform degrades to an empty result and never aborts the others.
type SourceError struct {
	Source string
	Status int
	Err    error
}

func (e *SourceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s request failed with status %d", e.Source, e.Status)
	}
	return fmt.Sprintf("%s request failed: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Descriptive feature keywords looked for in listing descriptions.
var featureKeywords = []string{"garden", "parking", "garage", "balcony", "terrace", "ensuite"}

func extractFeatures(description string) []string {
	lower := strings.ToLower(description)
	var features []string
	for _, keyword := range featureKeywords {
		if strings.Contains(lower, keyword) {
			features = append(features, strings.ToUpper(keyword[:1])+keyword[1:])
		}
	}
	return features
}

// propertyTypeParams translates the canonical property type vocabulary into
// the platforms' own categories; Zoopla and Rightmove share the same buckets.
var propertyTypeParams = map[string]string{
	"house":     "houses",
	"flat":      "flats",
	"apartment": "flats",
}
