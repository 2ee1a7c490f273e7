package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reagent/server/internal/agent"
	"reagent/server/internal/database"
	"reagent/server/internal/models"
	"reagent/server/internal/oracle"
	"reagent/server/internal/platforms"
	"reagent/server/internal/preferences"
)

type stubCompleter struct {
	reply string
	err   error
}

func (s *stubCompleter) Complete(_ context.Context, _ string, _ []oracle.Message) (string, error) {
	return s.reply, s.err
}

type stubFetcher struct {
	properties []models.Property
}

func (f *stubFetcher) Name() string  { return "stub" }
func (f *stubFetcher) Enabled() bool { return true }

func (f *stubFetcher) Search(_ context.Context, _ models.SearchCriteria) ([]models.Property, error) {
	return f.properties, nil
}

func newTestRouter(t *testing.T, completer oracle.Completer, fetched []models.Property) (*gin.Engine, *database.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := database.NewStore(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	learner := preferences.NewLearner(store, completer, nil)
	manager := platforms.NewManager([]platforms.Fetcher{&stubFetcher{properties: fetched}}, 20, nil)
	ag := agent.New(store, learner, manager, completer, 50, 5, nil)

	router := gin.New()
	SetupRoutes(router, NewHandler(store, ag, learner, manager, nil))
	return router, store
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return body
}

func TestSendMessage_GeneratesSessionID(t *testing.T) {
	completer := &stubCompleter{err: errors.New("oracle down")}
	router, _ := newTestRouter(t, completer, nil)

	recorder := doJSON(t, router, http.MethodPost, "/api/chat/message", gin.H{"message": "hello"})
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	assert.NotEmpty(t, body["session_id"])
	assert.NotEmpty(t, body["response"])
}

func TestSendMessage_RequiresMessage(t *testing.T) {
	router, _ := newTestRouter(t, &stubCompleter{}, nil)

	recorder := doJSON(t, router, http.MethodPost, "/api/chat/message", gin.H{"session_id": "abc"})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestGetConversationHistory_UnknownSessionIsEmpty(t *testing.T) {
	router, _ := newTestRouter(t, &stubCompleter{}, nil)

	recorder := doJSON(t, router, http.MethodGet, "/api/chat/history/never-seen", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	assert.Empty(t, body["conversations"])
}

func TestGetConversationHistory_ReturnsTurns(t *testing.T) {
	completer := &stubCompleter{err: errors.New("oracle down")}
	router, _ := newTestRouter(t, completer, nil)

	recorder := doJSON(t, router, http.MethodPost, "/api/chat/message",
		gin.H{"message": "2 bedroom flat in london", "session_id": "history-session"})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doJSON(t, router, http.MethodGet, "/api/chat/history/history-session", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	conversations, ok := body["conversations"].([]interface{})
	require.True(t, ok)
	assert.Len(t, conversations, 2)
	assert.NotEmpty(t, body["user_preferences"])
}

func TestProvideFeedback_UnknownSession(t *testing.T) {
	router, _ := newTestRouter(t, &stubCompleter{}, nil)

	recorder := doJSON(t, router, http.MethodPost, "/api/chat/feedback",
		gin.H{"session_id": "missing", "property_id": 1, "feedback": "interested"})
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestProvideFeedback_RecordsFeedback(t *testing.T) {
	router, store := newTestRouter(t, &stubCompleter{}, nil)

	user, err := store.GetOrCreateUser("feedback-session")
	require.NoError(t, err)

	recs := []models.Recommendation{{
		Property: models.Property{ExternalID: "z-1", Platform: "zoopla", Title: "Flat"},
		Score:    0.8,
	}}
	require.NoError(t, store.SaveRecommendations(user.ID, recs))

	recorder := doJSON(t, router, http.MethodPost, "/api/chat/feedback",
		gin.H{"session_id": "feedback-session", "property_id": recs[0].PropertyID, "feedback": models.FeedbackInterested})
	require.Equal(t, http.StatusOK, recorder.Code)

	stored, err := store.ListRecommendations(user.ID, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, models.FeedbackInterested, stored[0].Feedback)
	assert.True(t, stored[0].Viewed)
}

func TestClearSession(t *testing.T) {
	router, store := newTestRouter(t, &stubCompleter{}, nil)

	_, err := store.GetOrCreateUser("doomed-session")
	require.NoError(t, err)

	recorder := doJSON(t, router, http.MethodDelete, "/api/chat/session/doomed-session", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	_, err = store.GetUser("doomed-session")
	assert.ErrorIs(t, err, database.ErrNotFound)

	recorder = doJSON(t, router, http.MethodDelete, "/api/chat/session/doomed-session", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestUpdateAndGetPreferences(t *testing.T) {
	router, _ := newTestRouter(t, &stubCompleter{}, nil)

	recorder := doJSON(t, router, http.MethodPost, "/api/preferences/pref-session/update",
		gin.H{"preference_type": "location", "preference_value": "Bristol"})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doJSON(t, router, http.MethodGet, "/api/preferences/pref-session", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	prefs, ok := body["preferences"].([]interface{})
	require.True(t, ok)
	require.Len(t, prefs, 1)
	pref := prefs[0].(map[string]interface{})
	assert.Equal(t, "Bristol", pref["value"])
	assert.Equal(t, 1.0, pref["confidence"])
	assert.Equal(t, true, pref["is_explicit"])
	assert.Contains(t, body["summary"], "location: Bristol")
}

func TestUpdatePreference_RejectsUnknownType(t *testing.T) {
	router, _ := newTestRouter(t, &stubCompleter{}, nil)

	recorder := doJSON(t, router, http.MethodPost, "/api/preferences/pref-session/update",
		gin.H{"preference_type": "favourite_colour", "preference_value": "blue"})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestGetPreferences_UnknownSession(t *testing.T) {
	router, _ := newTestRouter(t, &stubCompleter{}, nil)

	recorder := doJSON(t, router, http.MethodGet, "/api/preferences/never-seen", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	assert.Equal(t, "No preferences learned yet.", body["summary"])
}

func TestDeleteAndClearPreferences(t *testing.T) {
	router, store := newTestRouter(t, &stubCompleter{}, nil)

	user, err := store.GetOrCreateUser("del-session")
	require.NoError(t, err)
	for _, pref := range []models.Preference{
		{UserID: user.ID, Type: models.PrefLocation, Value: "Leeds", Confidence: 0.9},
		{UserID: user.ID, Type: models.PrefMaxPrice, Value: "400000", Confidence: 0.8},
	} {
		p := pref
		require.NoError(t, store.SavePreference(&p))
	}

	recorder := doJSON(t, router, http.MethodDelete, "/api/preferences/del-session/location", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doJSON(t, router, http.MethodDelete, "/api/preferences/del-session/location", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = doJSON(t, router, http.MethodDelete, "/api/preferences/del-session", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, decodeBody(t, recorder)["message"], "Cleared 1 preferences")
}

func TestAnalyzePreferences(t *testing.T) {
	completer := &stubCompleter{err: errors.New("oracle down")}
	router, store := newTestRouter(t, completer, nil)

	recorder := doJSON(t, router, http.MethodPost, "/api/preferences/analyze-session/analyze",
		gin.H{"text": "looking for a house under 500k"})
	require.Equal(t, http.StatusOK, recorder.Code)

	user, err := store.GetUser("analyze-session")
	require.NoError(t, err)
	prefs, err := store.ListPreferences(user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, prefs)

	turns, err := store.GetTurns(user.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestGetPreferenceInsights(t *testing.T) {
	router, store := newTestRouter(t, &stubCompleter{}, nil)

	user, err := store.GetOrCreateUser("insight-session")
	require.NoError(t, err)
	for _, pref := range []models.Preference{
		{UserID: user.ID, Type: models.PrefLocation, Value: "York", Confidence: 0.9, Explicit: true},
		{UserID: user.ID, Type: models.PrefMaxPrice, Value: "300000", Confidence: 0.9, Explicit: true},
		{UserID: user.ID, Type: models.PrefGarden, Value: "required", Confidence: 0.4},
	} {
		p := pref
		require.NoError(t, store.SavePreference(&p))
	}

	recorder := doJSON(t, router, http.MethodGet, "/api/preferences/insight-session/insights", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	assert.Equal(t, float64(3), body["total_preferences"])
	assert.Equal(t, float64(2), body["explicit_preferences"])
	assert.Equal(t, float64(1), body["implicit_preferences"])

	dist := body["confidence_distribution"].(map[string]interface{})
	assert.Equal(t, float64(2), dist["high"])
	assert.Equal(t, float64(1), dist["low"])

	categories := body["preference_categories"].(map[string]interface{})
	assert.Equal(t, float64(1), categories["Location"])
	assert.Equal(t, float64(1), categories["Financial"])
	assert.Equal(t, float64(1), categories["Features"])

	assert.Contains(t, body["insights"], "Continue chatting")
}

func TestGetPreferenceInsights_NoPreferences(t *testing.T) {
	router, store := newTestRouter(t, &stubCompleter{}, nil)

	_, err := store.GetOrCreateUser("empty-session")
	require.NoError(t, err)

	recorder := doJSON(t, router, http.MethodGet, "/api/preferences/empty-session/insights", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "No preferences to analyze yet.", decodeBody(t, recorder)["insights"])
}

func TestSearchProperties(t *testing.T) {
	fetched := []models.Property{
		{ExternalID: "z-1", Platform: "zoopla", Title: "2 bed flat", Location: "London", Price: 300000, Relevance: 0.8},
	}
	router, _ := newTestRouter(t, &stubCompleter{}, fetched)

	recorder := doJSON(t, router, http.MethodPost, "/api/properties/search",
		gin.H{"location": "london", "max_price": 400000})
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	assert.Equal(t, float64(1), body["total_count"])
}

func TestGetProperties_QueryParams(t *testing.T) {
	fetched := []models.Property{
		{ExternalID: "z-1", Platform: "zoopla", Title: "2 bed flat", Location: "London", Price: 300000, Relevance: 0.8},
	}
	router, _ := newTestRouter(t, &stubCompleter{}, fetched)

	recorder := doJSON(t, router, http.MethodGet, "/api/properties?location=london&max_price=400000", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, float64(1), decodeBody(t, recorder)["total_count"])
}

func TestSaveAndGetProperty(t *testing.T) {
	router, _ := newTestRouter(t, &stubCompleter{}, nil)

	prop := gin.H{"external_id": "rm-9", "platform": "rightmove", "title": "Cottage", "price": 450000}

	recorder := doJSON(t, router, http.MethodPost, "/api/properties/save", prop)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "saved", decodeBody(t, recorder)["status"])

	recorder = doJSON(t, router, http.MethodPost, "/api/properties/save", prop)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "exists", decodeBody(t, recorder)["status"])

	recorder = doJSON(t, router, http.MethodGet, "/api/properties/rm-9?platform=rightmove", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "Cottage", decodeBody(t, recorder)["title"])

	recorder = doJSON(t, router, http.MethodGet, "/api/properties/rm-9?platform=zoopla", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestGetRecommendations(t *testing.T) {
	router, store := newTestRouter(t, &stubCompleter{}, nil)

	recorder := doJSON(t, router, http.MethodGet, "/api/properties/recommendations/missing", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	user, err := store.GetOrCreateUser("rec-session")
	require.NoError(t, err)
	require.NoError(t, store.SaveRecommendations(user.ID, []models.Recommendation{
		{Property: models.Property{ExternalID: "z-1", Platform: "zoopla"}, Score: 0.6},
		{Property: models.Property{ExternalID: "z-2", Platform: "zoopla"}, Score: 0.9},
	}))

	recorder = doJSON(t, router, http.MethodGet, "/api/properties/recommendations/rec-session", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	assert.Equal(t, float64(2), body["total_count"])
	recs := body["recommendations"].([]interface{})
	first := recs[0].(map[string]interface{})
	assert.Equal(t, 0.9, first["relevance_score"])
}
