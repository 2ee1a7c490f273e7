package agent

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"reagent/server/internal/database"
	"reagent/server/internal/models"
	"reagent/server/internal/oracle"
	"reagent/server/internal/platforms"
	"reagent/server/internal/preferences"
	"reagent/server/internal/prices"
)

const systemPrompt = `You are REAgent, an intelligent and friendly AI real estate concierge. Your mission is to help users find their perfect home through natural conversation.

Core capabilities:
- Learn user preferences dynamically from conversation
- Search and analyze real-time property listings
- Provide personalized recommendations with pros/cons
- Handle logistics like viewing arrangements
- Adapt and improve with each interaction

Personality:
- Warm, helpful, and professional
- Proactive in asking clarifying questions
- Enthusiastic about helping find the perfect home
- Expert knowledge of UK property market
- Patient and understanding of changing needs

Always:
- Ask follow-up questions to understand preferences better
- Explain your reasoning for recommendations
- Highlight both pros and cons of properties
- Offer to help with next steps (viewings, agent contact)
- Remember and reference previous conversation context`

const apologyReply = "I apologize, but I'm having trouble generating a response right now. Please try again."

// Agent drives one conversational exchange: learn preferences from the
// message, search listings against the merged preference set, reply, and
// score recommendations.
type Agent struct {
	store              *database.Store
	learner            *preferences.Learner
	platforms          *platforms.Manager
	completer          oracle.Completer
	logger             *logrus.Logger
	maxHistory         int
	maxRecommendations int
}

// Reply is the outcome of processing one user message.
type Reply struct {
	Response        string                       `json:"response"`
	Recommendations []models.Recommendation      `json:"recommendations"`
	Extracted       []models.PreferenceCandidate `json:"extracted_preferences"`
	UserID          int64                        `json:"conversation_id"`
}

func New(store *database.Store, learner *preferences.Learner, manager *platforms.Manager, completer oracle.Completer, maxHistory, maxRecommendations int, logger *logrus.Logger) *Agent {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Agent{
		store:              store,
		learner:            learner,
		platforms:          manager,
		completer:          completer,
		logger:             logger,
		maxHistory:         maxHistory,
		maxRecommendations: maxRecommendations,
	}
}

// ProcessMessage handles one user turn end to end. Extraction, search, and
// scoring failures all degrade internally; only store failures surface.
func (a *Agent) ProcessMessage(ctx context.Context, sessionID, message string) (*Reply, error) {
	user, err := a.store.GetOrCreateUser(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}

	if err := a.store.AppendTurn(user.ID, models.RoleUser, message); err != nil {
		return nil, fmt.Errorf("failed to store user turn: %w", err)
	}

	extracted, err := a.learner.ExtractAndMerge(ctx, user.ID, message)
	if err != nil {
		return nil, err
	}

	prefs, err := a.store.ListPreferences(user.ID)
	if err != nil {
		return nil, err
	}

	candidates := a.platforms.Search(ctx, CriteriaFromPreferences(prefs))
	if len(candidates) > 10 {
		candidates = candidates[:10]
	}

	response := a.generateReply(ctx, user.ID, message, prefs, len(candidates))

	if err := a.store.AppendTurn(user.ID, models.RoleAgent, response); err != nil {
		return nil, fmt.Errorf("failed to store agent turn: %w", err)
	}

	var recommendations []models.Recommendation
	if len(candidates) > 0 {
		recommendations = a.Recommend(ctx, user.ID, candidates)
	}

	return &Reply{
		Response:        response,
		Recommendations: recommendations,
		Extracted:       extracted,
		UserID:          user.ID,
	}, nil
}

// generateReply asks the oracle for a conversational answer with preference
// and search context attached; on failure it degrades to a canned apology.
func (a *Agent) generateReply(ctx context.Context, userID int64, message string, prefs []models.Preference, found int) string {
	var prompt strings.Builder
	prompt.WriteString(systemPrompt)
	prompt.WriteString("\n\nCurrent user preferences:\n")
	for _, pref := range prefs {
		explicit := "inferred"
		if pref.Explicit {
			explicit = "explicitly stated"
		}
		fmt.Fprintf(&prompt, "- %s: %s (confidence: %.2f, %s)\n", pref.Type, pref.Value, pref.Confidence, explicit)
	}
	if found > 0 {
		fmt.Fprintf(&prompt, "\nFound %d relevant properties. Consider mentioning the most suitable ones in your response.", found)
	}

	messages := a.historyMessages(userID)
	messages = append(messages, oracle.Message{Role: "user", Content: message})

	reply, err := a.completer.Complete(ctx, prompt.String(), messages)
	if err != nil {
		a.logger.WithError(err).Warn("Reply generation failed, using apology")
		return apologyReply
	}
	return reply
}

// historyMessages converts recent stored turns into oracle chat messages.
func (a *Agent) historyMessages(userID int64) []oracle.Message {
	turns, err := a.store.GetTurns(userID, a.maxHistory)
	if err != nil {
		a.logger.WithError(err).Warn("Failed to load conversation history")
		return nil
	}

	// Only the last few turns go to the oracle
	if len(turns) > 10 {
		turns = turns[len(turns)-10:]
	}

	messages := make([]oracle.Message, 0, len(turns))
	for _, turn := range turns {
		role := "user"
		if turn.Role == models.RoleAgent {
			role = "assistant"
		}
		messages = append(messages, oracle.Message{Role: role, Content: turn.Message})
	}
	return messages
}

// CriteriaFromPreferences derives platform search filters from the merged
// preference set. Numeric values that fail to parse are simply left unset.
func CriteriaFromPreferences(prefs []models.Preference) models.SearchCriteria {
	var criteria models.SearchCriteria
	for _, pref := range prefs {
		switch pref.Type {
		case models.PrefLocation:
			criteria.Location = pref.Value
		case models.PrefMaxPrice:
			if v, err := prices.ParseAmount(pref.Value); err == nil {
				criteria.MaxPrice = v
			}
		case models.PrefMinPrice:
			if v, err := prices.ParseAmount(pref.Value); err == nil {
				criteria.MinPrice = v
			}
		case models.PrefMinBedrooms:
			if v, err := strconv.Atoi(strings.TrimSpace(pref.Value)); err == nil {
				criteria.MinBedrooms = v
			}
		case models.PrefMaxBedrooms:
			if v, err := strconv.Atoi(strings.TrimSpace(pref.Value)); err == nil {
				criteria.MaxBedrooms = v
			}
		case models.PrefPropertyType:
			criteria.PropertyType = pref.Value
		}
	}
	return criteria
}
