package platforms

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"reagent/server/internal/models"
)

// Manager fans a search out to every configured platform concurrently and
// folds the results into one deduplicated, ranked candidate list.
type Manager struct {
	fetchers   []Fetcher
	maxResults int
	logger     *logrus.Logger
}

func NewManager(fetchers []Fetcher, maxResults int, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Manager{
		fetchers:   fetchers,
		maxResults: maxResults,
		logger:     logger,
	}
}

// Search runs all enabled platforms in parallel and returns the combined
// candidates, best first. A platform failure degrades to an empty
// contribution from that platform only; when every platform fails or is
// disabled the result is an empty list, not an error, since finding no
// properties is a valid outcome.
func (m *Manager) Search(ctx context.Context, criteria models.SearchCriteria) []models.Property {
	results := make([][]models.Property, len(m.fetchers))

	var wg sync.WaitGroup
	for i, fetcher := range m.fetchers {
		if !fetcher.Enabled() {
			m.logger.WithField("platform", fetcher.Name()).Debug("Platform not configured, skipping")
			continue
		}

		wg.Add(1)
		go func(i int, fetcher Fetcher) {
			defer wg.Done()
			properties, err := fetcher.Search(ctx, criteria)
			if err != nil {
				m.logger.WithError(err).WithField("platform", fetcher.Name()).Warn("Platform search failed")
				return
			}
			results[i] = properties
		}(i, fetcher)
	}
	wg.Wait()

	// Concatenate in fetcher-dispatch order so dedup is deterministic
	var combined []models.Property
	for _, properties := range results {
		combined = append(combined, properties...)
	}

	unique := deduplicate(combined)

	sort.SliceStable(unique, func(i, j int) bool {
		if unique[i].Relevance != unique[j].Relevance {
			return unique[i].Relevance > unique[j].Relevance
		}
		return unique[i].Price > unique[j].Price
	})

	if len(unique) > m.maxResults {
		unique = unique[:m.maxResults]
	}
	return unique
}

type dedupKey struct {
	location string
	price    int
	bedrooms int
}

// deduplicate drops listings that share (location, price, bedrooms) with an
// earlier one. First occurrence in dispatch order wins, even when a later
// duplicate carries a higher relevance hint, which can suppress the better
// ranked copy. Known ranking quirk.
func deduplicate(properties []models.Property) []models.Property {
	seen := make(map[dedupKey]bool, len(properties))
	unique := make([]models.Property, 0, len(properties))

	for _, property := range properties {
		key := dedupKey{
			location: strings.ToLower(strings.TrimSpace(property.Location)),
			price:    property.Price,
			bedrooms: property.Bedrooms,
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, property)
	}

	return unique
}
