package models

import (
	"time"

	"github.com/paulmach/orb"
)

// Preference types learned from conversation. A user has at most one
// preference row per type.
const (
	PrefLocation         = "location"
	PrefMaxPrice         = "max_price"
	PrefMinPrice         = "min_price"
	PrefMinBedrooms      = "min_bedrooms"
	PrefMaxBedrooms      = "max_bedrooms"
	PrefPropertyType     = "property_type"
	PrefGarden           = "garden"
	PrefParking          = "parking"
	PrefTransportLinks   = "transport_links"
	PrefSchools          = "schools"
	PrefLifestyle        = "lifestyle"
	PrefMoveDate         = "move_date"
	PrefSpecificFeatures = "specific_features"
)

// PreferenceTypes lists every recognized preference type.
var PreferenceTypes = []string{
	PrefLocation, PrefMaxPrice, PrefMinPrice, PrefMinBedrooms, PrefMaxBedrooms,
	PrefPropertyType, PrefGarden, PrefParking, PrefTransportLinks, PrefSchools,
	PrefLifestyle, PrefMoveDate, PrefSpecificFeatures,
}

// Conversation roles.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Recommendation feedback values.
const (
	FeedbackInterested    = "interested"
	FeedbackNotInterested = "not_interested"
	FeedbackViewed        = "viewed"
)

type User struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"uniqueIndex" json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Preference is a single learned preference for a user. Confidence stays in
// [0.1, 1.0] and never decreases across merges.
type Preference struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	UserID     int64     `gorm:"uniqueIndex:idx_user_pref_type" json:"user_id"`
	Type       string    `gorm:"column:preference_type;uniqueIndex:idx_user_pref_type" json:"type"`
	Value      string    `gorm:"column:preference_value" json:"value"`
	Confidence float64   `gorm:"column:confidence_score" json:"confidence"`
	Explicit   bool      `gorm:"column:is_explicit" json:"is_explicit"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PreferenceCandidate is an extracted preference before merging.
type PreferenceCandidate struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Explicit   bool    `json:"is_explicit"`
	Context    string  `json:"context,omitempty"`
}

// Conversation is one turn of a chat session. Turns are append-only.
type Conversation struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	UserID    int64     `gorm:"index" json:"user_id"`
	Role      string    `gorm:"column:message_type" json:"role"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// AgentInfo holds estate agent contact details attached to a listing.
type AgentInfo struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Logo  string `json:"logo,omitempty"`
}

// Property is the canonical listing record shared by every platform.
// ExternalID is only unique within its own platform.
type Property struct {
	ID           int64      `gorm:"primaryKey" json:"id"`
	ExternalID   string     `gorm:"index:idx_platform_external" json:"external_id"`
	Platform     string     `gorm:"index:idx_platform_external" json:"platform"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Price        int        `json:"price"`
	Bedrooms     int        `json:"bedrooms"`
	Bathrooms    int        `json:"bathrooms"`
	PropertyType string     `json:"property_type"`
	Location     string     `json:"location"`
	Postcode     string     `json:"postcode,omitempty"`
	Coordinates  *orb.Point `gorm:"serializer:json" json:"coordinates,omitempty"`
	Images       []string   `gorm:"serializer:json" json:"images"`
	Features     []string   `gorm:"serializer:json" json:"features"`
	AgentInfo    *AgentInfo `gorm:"serializer:json" json:"agent_info,omitempty"`
	URL          string     `json:"url"`
	Relevance    float64    `gorm:"column:relevance_score" json:"relevance_score"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Recommendation is a scored property for a user, with the AI's reasoning.
type Recommendation struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	UserID     int64     `gorm:"index" json:"user_id"`
	PropertyID int64     `json:"property_id"`
	Property   Property  `json:"property"`
	Score      float64   `gorm:"column:relevance_score" json:"relevance_score"`
	Pros       []string  `gorm:"serializer:json" json:"pros"`
	Cons       []string  `gorm:"serializer:json" json:"cons"`
	Reasoning  string    `json:"reasoning"`
	Viewed     bool      `json:"viewed"`
	Feedback   string    `gorm:"column:user_feedback" json:"user_feedback,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SearchCriteria is the sparse filter set sent to each platform. Zero values
// mean the filter is absent.
type SearchCriteria struct {
	Location     string `json:"location,omitempty"`
	MaxPrice     int    `json:"max_price,omitempty"`
	MinPrice     int    `json:"min_price,omitempty"`
	MinBedrooms  int    `json:"min_bedrooms,omitempty"`
	MaxBedrooms  int    `json:"max_bedrooms,omitempty"`
	PropertyType string `json:"property_type,omitempty"`
}
