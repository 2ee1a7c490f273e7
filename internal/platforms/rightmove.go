package platforms

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"reagent/server/internal/models"
)

// Default relevance hint for scraped Rightmove results, below the Zoopla API
// default since scraped cards carry less structure.
const rightmoveDefaultRelevance = 0.7

const rightmoveUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Rightmove has no public API, so search results come from scraping the
// listing cards on the search page.
type RightmoveClient struct {
	baseURL string
	enabled bool
	client  *http.Client
	logger  *logrus.Logger
}

// Rightmove identifies search regions by an internal code rather than by
// name; unknown locations fall back to London.
var rightmoveRegions = map[string]string{
	"london":     "REGION^876",
	"manchester": "REGION^775",
	"birmingham": "REGION^774",
}

var (
	bedroomsPattern = regexp.MustCompile(`(\d+)\s*bed`)
	postcodePattern = regexp.MustCompile(`[A-Z]{1,2}[0-9R][0-9A-Z]? [0-9][A-Z]{2}`)
	nonDigitPattern = regexp.MustCompile(`[^\d]`)
)

func NewRightmoveClient(baseURL string, enabled bool, timeout time.Duration, logger *logrus.Logger) *RightmoveClient {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &RightmoveClient{
		baseURL: baseURL,
		enabled: enabled,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (r *RightmoveClient) Name() string { return "rightmove" }

func (r *RightmoveClient) Enabled() bool { return r.enabled }

func (r *RightmoveClient) Search(ctx context.Context, criteria models.SearchCriteria) ([]models.Property, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", r.searchURL(criteria), nil)
	if err != nil {
		return nil, &SourceError{Source: r.Name(), Err: err}
	}
	req.Header.Set("User-Agent", rightmoveUserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &SourceError{Source: r.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &SourceError{Source: r.Name(), Status: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &SourceError{Source: r.Name(), Err: fmt.Errorf("failed to parse markup: %w", err)}
	}

	return r.parseResults(doc), nil
}

func (r *RightmoveClient) searchURL(criteria models.SearchCriteria) string {
	params := url.Values{
		"searchType":         []string{"SALE"},
		"locationIdentifier": []string{r.regionIdentifier(criteria.Location)},
		"includeSSTC":        []string{"false"},
	}

	if criteria.MaxPrice > 0 {
		params.Set("maxPrice", strconv.Itoa(criteria.MaxPrice))
	}
	if criteria.MinPrice > 0 {
		params.Set("minPrice", strconv.Itoa(criteria.MinPrice))
	}
	if criteria.MinBedrooms > 0 {
		params.Set("minBedrooms", strconv.Itoa(criteria.MinBedrooms))
	}
	if criteria.MaxBedrooms > 0 {
		params.Set("maxBedrooms", strconv.Itoa(criteria.MaxBedrooms))
	}
	if criteria.PropertyType != "" {
		if mapped, ok := propertyTypeParams[strings.ToLower(criteria.PropertyType)]; ok {
			params.Set("propertyTypes", mapped)
		}
	}

	return r.baseURL + "/property-for-sale/find.html?" + params.Encode()
}

func (r *RightmoveClient) regionIdentifier(location string) string {
	lower := strings.ToLower(location)
	for name, identifier := range rightmoveRegions {
		if strings.Contains(lower, name) {
			return identifier
		}
	}
	return rightmoveRegions["london"]
}

func (r *RightmoveClient) parseResults(doc *goquery.Document) []models.Property {
	var properties []models.Property

	doc.Find("div.l-searchResult").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		property, ok := r.extractCard(card)
		if !ok {
			return true
		}
		properties = append(properties, property)
		return len(properties) < 10
	})

	return properties
}

// extractCard maps a single search result card onto the canonical property
// record. Missing elements become zero values; a card without an address is
// dropped, never the whole page.
func (r *RightmoveClient) extractCard(card *goquery.Selection) (models.Property, bool) {
	address := strings.TrimSpace(card.Find("address.propertyCard-address").Text())
	if address == "" {
		r.logger.Warn("Skipping Rightmove card with no address")
		return models.Property{}, false
	}

	description := strings.TrimSpace(card.Find("span.propertyCard-description").Text())
	price := parsePriceText(card.Find("span.propertyCard-priceValue").Text())
	bedrooms := extractBedrooms(card.Find("h2.propertyCard-title").Text())

	imageURL, _ := card.Find("img.propertyCard-img").Attr("src")
	var images []string
	if imageURL != "" {
		images = []string{imageURL}
	}

	var propertyURL string
	if href, ok := card.Find("a.propertyCard-link").Attr("href"); ok && href != "" {
		propertyURL = r.baseURL + href
	}

	externalID := ""
	if propertyURL != "" {
		parts := strings.Split(strings.TrimSuffix(propertyURL, "/"), "/")
		externalID = parts[len(parts)-1]
	}

	return models.Property{
		ExternalID:   externalID,
		Platform:     r.Name(),
		Title:        address,
		Description:  description,
		Price:        price,
		Bedrooms:     bedrooms,
		PropertyType: extractPropertyType(description),
		Location:     address,
		Postcode:     extractPostcode(address),
		Images:       images,
		Features:     extractFeatures(description),
		URL:          propertyURL,
		Relevance:    rightmoveDefaultRelevance,
	}, true
}

// parsePriceText strips everything but digits from a display price like
// "£425,000". Unparsable text becomes 0 here; a scraped card with no price
// is still worth surfacing.
func parsePriceText(text string) int {
	digits := nonDigitPattern.ReplaceAllString(text, "")
	if digits == "" {
		return 0
	}
	price, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return price
}

func extractBedrooms(title string) int {
	match := bedroomsPattern.FindStringSubmatch(strings.ToLower(title))
	if match == nil {
		return 0
	}
	bedrooms, _ := strconv.Atoi(match[1])
	return bedrooms
}

func extractPropertyType(description string) string {
	lower := strings.ToLower(description)
	switch {
	case strings.Contains(lower, "flat"), strings.Contains(lower, "apartment"):
		return "flat"
	case strings.Contains(lower, "house"):
		return "house"
	case strings.Contains(lower, "studio"):
		return "studio"
	default:
		return "property"
	}
}

func extractPostcode(address string) string {
	return postcodePattern.FindString(strings.ToUpper(address))
}
