package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"reagent/server/internal/models"
)

// Default relevance hint for Zoopla results; API-sourced listings rank above
// scraped ones when nothing else separates them.
const zooplaDefaultRelevance = 0.8

// ZooplaClient fetches listings from the Zoopla property API. An empty API
// key disables the platform.
type ZooplaClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *logrus.Logger
}

func NewZooplaClient(apiKey, baseURL string, timeout time.Duration, logger *logrus.Logger) *ZooplaClient {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &ZooplaClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (z *ZooplaClient) Name() string { return "zoopla" }

func (z *ZooplaClient) Enabled() bool { return z.apiKey != "" }

type zooplaListing struct {
	ListingID         json.Number `json:"listing_id"`
	DisplayableAddress string     `json:"displayable_address"`
	Description       string      `json:"description"`
	Price             int         `json:"price"`
	NumBedrooms       int         `json:"num_bedrooms"`
	NumBathrooms      int         `json:"num_bathrooms"`
	NumFloors         int         `json:"num_floors"`
	PropertyType      string      `json:"property_type"`
	Outcode           string      `json:"outcode"`
	Latitude          *float64    `json:"latitude"`
	Longitude         *float64    `json:"longitude"`
	ImageURL          string      `json:"image_url"`
	AgentName         string      `json:"agent_name"`
	AgentPhone        string      `json:"agent_phone"`
	AgentLogo         string      `json:"agent_logo"`
	DetailsURL        string      `json:"details_url"`
}

type zooplaResponse struct {
	Listing []json.RawMessage `json:"listing"`
}

func (z *ZooplaClient) Search(ctx context.Context, criteria models.SearchCriteria) ([]models.Property, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", z.baseURL+"/property_listings.json", nil)
	if err != nil {
		return nil, &SourceError{Source: z.Name(), Err: err}
	}
	req.URL.RawQuery = z.buildParams(criteria).Encode()

	resp, err := z.client.Do(req)
	if err != nil {
		return nil, &SourceError{Source: z.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &SourceError{Source: z.Name(), Status: resp.StatusCode}
	}

	var data zooplaResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, &SourceError{Source: z.Name(), Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	properties := make([]models.Property, 0, len(data.Listing))
	for _, raw := range data.Listing {
		var listing zooplaListing
		if err := json.Unmarshal(raw, &listing); err != nil {
			// One malformed record never fails the batch
			z.logger.WithError(err).Warn("Skipping malformed Zoopla listing")
			continue
		}
		properties = append(properties, z.normalize(listing))
	}

	return properties, nil
}

func (z *ZooplaClient) buildParams(criteria models.SearchCriteria) url.Values {
	params := url.Values{
		"api_key":        []string{z.apiKey},
		"listing_status": []string{"sale"},
		"page_size":      []string{"10"},
	}

	if criteria.Location != "" {
		params.Set("area", criteria.Location)
	}
	if criteria.MaxPrice > 0 {
		params.Set("maximum_price", strconv.Itoa(criteria.MaxPrice))
	}
	if criteria.MinPrice > 0 {
		params.Set("minimum_price", strconv.Itoa(criteria.MinPrice))
	}
	if criteria.MinBedrooms > 0 {
		params.Set("minimum_beds", strconv.Itoa(criteria.MinBedrooms))
	}
	if criteria.MaxBedrooms > 0 {
		params.Set("maximum_beds", strconv.Itoa(criteria.MaxBedrooms))
	}
	if criteria.PropertyType != "" {
		if mapped, ok := propertyTypeParams[strings.ToLower(criteria.PropertyType)]; ok {
			params.Set("property_type", mapped)
		}
	}

	return params
}

// normalize maps a Zoopla listing onto the canonical property record,
// substituting zero values for anything missing.
func (z *ZooplaClient) normalize(listing zooplaListing) models.Property {
	var features []string
	if listing.NumFloors > 0 {
		features = append(features, fmt.Sprintf("%d floors", listing.NumFloors))
	}
	if listing.PropertyType != "" {
		features = append(features, listing.PropertyType)
	}
	features = append(features, extractFeatures(listing.Description)...)

	var images []string
	if listing.ImageURL != "" {
		images = []string{listing.ImageURL}
	}

	var coords *orb.Point
	if listing.Latitude != nil && listing.Longitude != nil {
		coords = &orb.Point{*listing.Longitude, *listing.Latitude}
	}

	var agent *models.AgentInfo
	if listing.AgentName != "" || listing.AgentPhone != "" {
		agent = &models.AgentInfo{
			Name:  listing.AgentName,
			Phone: listing.AgentPhone,
			Logo:  listing.AgentLogo,
		}
	}

	return models.Property{
		ExternalID:   listing.ListingID.String(),
		Platform:     z.Name(),
		Title:        listing.DisplayableAddress,
		Description:  listing.Description,
		Price:        listing.Price,
		Bedrooms:     listing.NumBedrooms,
		Bathrooms:    listing.NumBathrooms,
		PropertyType: listing.PropertyType,
		Location:     listing.DisplayableAddress,
		Postcode:     listing.Outcode,
		Coordinates:  coords,
		Images:       images,
		Features:     features,
		AgentInfo:    agent,
		URL:          listing.DetailsURL,
		Relevance:    zooplaDefaultRelevance,
	}
}
