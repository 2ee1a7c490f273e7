package platforms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"reagent/server/internal/models"
)

const zooplaSample = `{
	"listing": [
		{
			"listing_id": 12345,
			"displayable_address": "10 Park Road, London NW1 4SH",
			"description": "A bright flat with a private garden and allocated parking.",
			"price": 425000,
			"num_bedrooms": 2,
			"num_bathrooms": 1,
			"num_floors": 2,
			"property_type": "flat",
			"outcode": "NW1",
			"latitude": 51.53,
			"longitude": -0.15,
			"image_url": "https://img.example.com/12345.jpg",
			"agent_name": "Park Estates",
			"agent_phone": "020 7000 0000",
			"details_url": "https://zoopla.example.com/12345"
		},
		{"listing_id": "not-even-a-listing", "price": "broken"},
		{
			"listing_id": 67890,
			"displayable_address": "5 Side Street, London",
			"price": 310000,
			"num_bedrooms": 1
		}
	]
}`

func TestZooplaClient_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/property_listings.json", r.URL.Path)
		query := r.URL.Query()
		assert.Equal(t, "test-key", query.Get("api_key"))
		assert.Equal(t, "sale", query.Get("listing_status"))
		assert.Equal(t, "London", query.Get("area"))
		assert.Equal(t, "450000", query.Get("maximum_price"))
		assert.Equal(t, "2", query.Get("minimum_beds"))
		assert.Equal(t, "flats", query.Get("property_type"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(zooplaSample))
	}))
	defer server.Close()

	client := NewZooplaClient("test-key", server.URL, 5*time.Second, nil)
	properties, err := client.Search(context.Background(), models.SearchCriteria{
		Location:     "London",
		MaxPrice:     450000,
		MinBedrooms:  2,
		PropertyType: "apartment",
	})
	assert.NoError(t, err)

	// The malformed record is skipped, not fatal
	assert.Len(t, properties, 2)

	first := properties[0]
	assert.Equal(t, "12345", first.ExternalID)
	assert.Equal(t, "zoopla", first.Platform)
	assert.Equal(t, "10 Park Road, London NW1 4SH", first.Location)
	assert.Equal(t, 425000, first.Price)
	assert.Equal(t, 2, first.Bedrooms)
	assert.Equal(t, "NW1", first.Postcode)
	assert.Equal(t, 0.8, first.Relevance)
	assert.NotNil(t, first.Coordinates)
	assert.Equal(t, []string{"https://img.example.com/12345.jpg"}, first.Images)
	assert.Contains(t, first.Features, "Garden")
	assert.Contains(t, first.Features, "Parking")
	assert.Equal(t, "Park Estates", first.AgentInfo.Name)

	// Sparse record degrades to zero values instead of failing
	second := properties[1]
	assert.Equal(t, "67890", second.ExternalID)
	assert.Equal(t, 0, second.Bathrooms)
	assert.Nil(t, second.Coordinates)
	assert.Nil(t, second.AgentInfo)
}

func TestZooplaClient_Search_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewZooplaClient("test-key", server.URL, 5*time.Second, nil)
	_, err := client.Search(context.Background(), models.SearchCriteria{})

	var sourceErr *SourceError
	assert.ErrorAs(t, err, &sourceErr)
	assert.Equal(t, http.StatusForbidden, sourceErr.Status)
	assert.Equal(t, "zoopla", sourceErr.Source)
}

func TestZooplaClient_DisabledWithoutKey(t *testing.T) {
	client := NewZooplaClient("", "https://api.zoopla.co.uk/api/v1", 5*time.Second, nil)
	assert.False(t, client.Enabled())

	withKey := NewZooplaClient("key", "https://api.zoopla.co.uk/api/v1", 5*time.Second, nil)
	assert.True(t, withKey.Enabled())
}
