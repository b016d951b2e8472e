package athletes

import (
	"fmt"
	"strings"
	"time"

	models "podium-coach/database/models_pkg"

	"gorm.io/gorm"
)

// DemoExternalID identifies the bootstrap athlete used before any roster sync
// has run.
const DemoExternalID = "athlete_demo_1"

// Repository handles database operations for athletes and their stored
// provider tokens.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new athletes repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetByID retrieves an athlete by internal id
func (r *Repository) GetByID(id int64) (*models.Athlete, error) {
	var athlete models.Athlete
	err := r.db.First(&athlete, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return &athlete, nil
}

// List returns all athletes ordered by name
func (r *Repository) List() ([]models.Athlete, error) {
	var out []models.Athlete
	if err := r.db.Order("name").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return out, nil
}

// GetOrCreateDemo returns the bootstrap athlete, creating it on first use.
func (r *Repository) GetOrCreateDemo() (*models.Athlete, error) {
	var athlete models.Athlete
	err := r.db.Where("external_id = ?", DemoExternalID).First(&athlete).Error
	if err == nil {
		return &athlete, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("GetOrCreateDemo: %w", err)
	}
	athlete = models.Athlete{
		ExternalID: DemoExternalID,
		Name:       "Demo Athlete",
		Email:      "demo@example.com",
	}
	if err := r.db.Create(&athlete).Error; err != nil {
		return nil, fmt.Errorf("GetOrCreateDemo: %w", err)
	}
	return &athlete, nil
}

// Upsert creates or updates a local athlete row from a provider roster entry.
// Matching prefers the provider numeric id, then the external id; otherwise a
// new row is created with a derived external id.
func (r *Repository) Upsert(tpAthleteID int64, name, email, externalID string) (*models.Athlete, error) {
	var existing models.Athlete
	err := r.db.Where("tp_athlete_id = ?", tpAthleteID).First(&existing).Error
	if err == nil {
		return r.applyUpdates(&existing, name, email, nil)
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("Upsert: %w", err)
	}

	if externalID != "" {
		err = r.db.Where("external_id = ?", externalID).First(&existing).Error
		if err == nil {
			return r.applyUpdates(&existing, name, email, &tpAthleteID)
		}
		if err != gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("Upsert: %w", err)
		}
	}

	if externalID == "" {
		externalID = fmt.Sprintf("tp_%d", tpAthleteID)
	}
	if name == "" {
		name = fmt.Sprintf("Athlete %d", tpAthleteID)
	}
	athlete := models.Athlete{
		ExternalID:  externalID,
		TPAthleteID: &tpAthleteID,
		Name:        name,
		Email:       email,
	}
	if err := r.db.Create(&athlete).Error; err != nil {
		return nil, fmt.Errorf("Upsert: %w", err)
	}
	return &athlete, nil
}

func (r *Repository) applyUpdates(athlete *models.Athlete, name, email string, tpAthleteID *int64) (*models.Athlete, error) {
	changed := false
	if tpAthleteID != nil && (athlete.TPAthleteID == nil || *athlete.TPAthleteID != *tpAthleteID) {
		athlete.TPAthleteID = tpAthleteID
		changed = true
	}
	if name != "" && athlete.Name != name {
		athlete.Name = name
		changed = true
	}
	if email != "" && athlete.Email != email {
		athlete.Email = email
		changed = true
	}
	if changed {
		if err := r.db.Save(athlete).Error; err != nil {
			return nil, fmt.Errorf("applyUpdates: %w", err)
		}
	}
	return athlete, nil
}

// SetTPAthleteID persists a provider numeric id inferred from workout payloads.
func (r *Repository) SetTPAthleteID(athleteID, tpAthleteID int64) error {
	err := r.db.Model(&models.Athlete{}).
		Where("id = ?", athleteID).
		Update("tp_athlete_id", tpAthleteID).Error
	if err != nil {
		return fmt.Errorf("SetTPAthleteID: %w", err)
	}
	return nil
}

// StoreToken replaces any stored token for the athlete with the given one.
func (r *Repository) StoreToken(athleteID int64, accessToken, refreshToken, scope string, expiresAt time.Time) (*models.OAuthToken, error) {
	token := models.OAuthToken{
		AthleteID:    athleteID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		Scope:        scope,
	}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("athlete_id = ?", athleteID).Delete(&models.OAuthToken{}).Error; err != nil {
			return err
		}
		return tx.Create(&token).Error
	})
	if err != nil {
		return nil, fmt.Errorf("StoreToken: %w", err)
	}
	return &token, nil
}

// GetToken retrieves the stored token for an athlete, nil when absent
func (r *Repository) GetToken(athleteID int64) (*models.OAuthToken, error) {
	var token models.OAuthToken
	err := r.db.Where("athlete_id = ?", athleteID).First(&token).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetToken: %w", err)
	}
	return &token, nil
}

// DeleteToken removes a stored token for an athlete (used after refresh failure)
func (r *Repository) DeleteToken(athleteID int64) error {
	if err := r.db.Where("athlete_id = ?", athleteID).Delete(&models.OAuthToken{}).Error; err != nil {
		return fmt.Errorf("DeleteToken: %w", err)
	}
	return nil
}

// FindCoachToken returns the most recent token carrying the coach roster
// scope, if any. Used as a fallback for roster athletes without their own
// connection.
func (r *Repository) FindCoachToken() (*models.OAuthToken, error) {
	var tokens []models.OAuthToken
	if err := r.db.Order("expires_at DESC").Find(&tokens).Error; err != nil {
		return nil, fmt.Errorf("FindCoachToken: %w", err)
	}
	for i := range tokens {
		if strings.Contains(strings.ToLower(tokens[i].Scope), "coach:athletes") {
			return &tokens[i], nil
		}
	}
	return nil, nil
}
