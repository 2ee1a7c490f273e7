package database

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"reagent/server/internal/models"
)

// ErrNotFound is returned when a user, preference, or recommendation does
// not exist.
var ErrNotFound = errors.New("record not found")

// Store wraps the sqlite database behind the operations the agent needs.
type Store struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewStore(path string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	err := s.db.AutoMigrate(
		&models.User{},
		&models.Preference{},
		&models.Conversation{},
		&models.Property{},
		&models.Recommendation{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn against a transactional view of the store. The preference
// merge read-modify-write goes through here so concurrent writes to the
// same row stay consistent.
func (s *Store) WithTx(fn func(tx *Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, logger: s.logger})
	})
}

// GetOrCreateUser looks a user up by session ID, creating one on first contact.
func (s *Store) GetOrCreateUser(sessionID string) (*models.User, error) {
	var user models.User
	err := s.db.Where(&models.User{SessionID: sessionID}).
		FirstOrCreate(&user, models.User{SessionID: sessionID}).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUser looks a user up by session ID, failing with ErrNotFound when the
// session has never been seen.
func (s *Store) GetUser(sessionID string) (*models.User, error) {
	var user models.User
	err := s.db.Where("session_id = ?", sessionID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetPreference(userID int64, prefType string) (*models.Preference, error) {
	var pref models.Preference
	err := s.db.Where("user_id = ? AND preference_type = ?", userID, prefType).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

func (s *Store) ListPreferences(userID int64) ([]models.Preference, error) {
	var prefs []models.Preference
	err := s.db.Where("user_id = ?", userID).Order("preference_type").Find(&prefs).Error
	return prefs, err
}

// SavePreference creates or updates a preference row.
func (s *Store) SavePreference(pref *models.Preference) error {
	return s.db.Save(pref).Error
}

func (s *Store) DeletePreference(userID int64, prefType string) error {
	result := s.db.Where("user_id = ? AND preference_type = ?", userID, prefType).
		Delete(&models.Preference{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearPreferences removes every preference for a user and reports how many
// rows were deleted.
func (s *Store) ClearPreferences(userID int64) (int64, error) {
	result := s.db.Where("user_id = ?", userID).Delete(&models.Preference{})
	return result.RowsAffected, result.Error
}

// AppendTurn records one conversation turn. Turns are never mutated.
func (s *Store) AppendTurn(userID int64, role, message string) error {
	turn := models.Conversation{
		UserID:  userID,
		Role:    role,
		Message: message,
	}
	return s.db.Create(&turn).Error
}

// GetTurns returns the most recent limit turns in chronological order.
func (s *Store) GetTurns(userID int64, limit int) ([]models.Conversation, error) {
	var turns []models.Conversation
	err := s.db.Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&turns).Error
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// GetProperty looks up a stored property by its platform identity.
func (s *Store) GetProperty(platform, externalID string) (*models.Property, error) {
	var prop models.Property
	err := s.db.Where("platform = ? AND external_id = ?", platform, externalID).
		First(&prop).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &prop, nil
}

// SaveProperty stores a property if its (platform, external id) pair is new.
// Returns true when a new row was created.
func (s *Store) SaveProperty(prop *models.Property) (bool, error) {
	existing, err := s.GetProperty(prop.Platform, prop.ExternalID)
	switch {
	case err == nil:
		prop.ID = existing.ID
		return false, nil
	case !errors.Is(err, ErrNotFound):
		return false, err
	}
	return true, s.db.Create(prop).Error
}

// SaveRecommendations persists scored recommendations, upserting each
// property by its (platform, external id) pair first.
func (s *Store) SaveRecommendations(userID int64, recs []models.Recommendation) error {
	return s.WithTx(func(tx *Store) error {
		for i := range recs {
			prop := &recs[i].Property
			var existing models.Property
			err := tx.db.Where("platform = ? AND external_id = ?", prop.Platform, prop.ExternalID).
				First(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				if err := tx.db.Create(prop).Error; err != nil {
					return err
				}
			case err != nil:
				return err
			default:
				prop.ID = existing.ID
			}

			recs[i].UserID = userID
			recs[i].PropertyID = prop.ID
			if err := tx.db.Create(&recs[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ListRecommendations returns a user's persisted recommendations ordered by
// relevance score, best first.
func (s *Store) ListRecommendations(userID int64, limit int) ([]models.Recommendation, error) {
	var recs []models.Recommendation
	err := s.db.Preload("Property").
		Where("user_id = ?", userID).
		Order("relevance_score DESC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

// SetRecommendationFeedback records user feedback on a recommended property.
func (s *Store) SetRecommendationFeedback(userID, propertyID int64, feedback string) error {
	result := s.db.Model(&models.Recommendation{}).
		Where("user_id = ? AND property_id = ?", userID, propertyID).
		Updates(map[string]interface{}{"user_feedback": feedback, "viewed": true})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSession removes a user together with their turns, preferences, and
// recommendations.
func (s *Store) DeleteSession(sessionID string) error {
	user, err := s.GetUser(sessionID)
	if err != nil {
		return err
	}

	return s.WithTx(func(tx *Store) error {
		if err := tx.db.Where("user_id = ?", user.ID).Delete(&models.Conversation{}).Error; err != nil {
			return err
		}
		if err := tx.db.Where("user_id = ?", user.ID).Delete(&models.Preference{}).Error; err != nil {
			return err
		}
		if err := tx.db.Where("user_id = ?", user.ID).Delete(&models.Recommendation{}).Error; err != nil {
			return err
		}
		return tx.db.Delete(&models.User{}, user.ID).Error
	})
}
