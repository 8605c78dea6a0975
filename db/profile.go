package db

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Profile caches the signed-in account so status can be shown without a request.
type Profile struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	FetchedAt time.Time `json:"fetched_at"`
}

// GetProfile retrieves the cached profile, or nil when none is cached.
func GetProfile() (*Profile, error) {
	if Db == nil {
		return nil, fmt.Errorf("database connection is not initialized")
	}

	var profile Profile
	if err := Db.First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		log.Error().Err(err).Msg("Failed to retrieve cached profile")
		return nil, err
	}
	return &profile, nil
}

// UpsertProfile replaces the cached profile. Only one profile is kept.
func UpsertProfile(profile *Profile) error {
	if Db == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	if profile == nil || profile.ID == "" {
		return fmt.Errorf("profile ID cannot be empty")
	}

	err := Db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id <> ?", profile.ID).Delete(&Profile{}).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(profile).Error
	})
	if err != nil {
		log.Error().Err(err).Str("id", profile.ID).Msg("Failed to upsert profile")
		return err
	}

	log.Info().Str("id", profile.ID).Msg("Profile cached")
	return nil
}

// ClearProfile removes the cached profile.
func ClearProfile() error {
	if Db == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	return Db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Profile{}).Error
}
