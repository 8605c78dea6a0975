package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Storage keys of the persisted credential pair.
const (
	AccessTokenKey  = "access_token"
	RefreshTokenKey = "refresh_token"
)

// Setting is a single persisted key/value pair.
type Setting struct {
	Key   string `gorm:"column:setting_key;primaryKey" json:"key"`
	Value string `json:"value"`
}

// Credentials is the access/refresh token pair issued by the backend.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Empty reports whether neither token is present.
func (c *Credentials) Empty() bool {
	return c == nil || (c.AccessToken == "" && c.RefreshToken == "")
}

// CredentialRepository persists the credential pair.
// Load returns (nil, nil) when nothing is stored.
type CredentialRepository interface {
	Load(ctx context.Context) (*Credentials, error)
	Save(ctx context.Context, creds *Credentials) error
	Clear(ctx context.Context) error
}

// gormCredentialRepo is a GORM-backed implementation of CredentialRepository.
// Use constructor NewCredentialRepository to obtain an instance.
type gormCredentialRepo struct{ db *gorm.DB }

// NewCredentialRepository creates a CredentialRepository. Accepts *gorm.DB to avoid global access.
func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &gormCredentialRepo{db: db}
}

func (r *gormCredentialRepo) Load(ctx context.Context) (*Credentials, error) {
	if r.db == nil {
		return nil, fmt.Errorf("repository not initialized")
	}
	var rows []Setting
	err := r.db.WithContext(ctx).
		Where("setting_key IN ?", []string{AccessTokenKey, RefreshTokenKey}).
		Find(&rows).Error
	if err != nil {
		log.Error().Err(err).Msg("Failed to load credentials")
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	creds := &Credentials{}
	for _, row := range rows {
		switch row.Key {
		case AccessTokenKey:
			creds.AccessToken = row.Value
		case RefreshTokenKey:
			creds.RefreshToken = row.Value
		}
	}
	return creds, nil
}

// Save replaces both tokens in one transaction.
func (r *gormCredentialRepo) Save(ctx context.Context, creds *Credentials) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	if creds == nil {
		return errors.New("credentials cannot be nil")
	}
	rows := []Setting{
		{Key: AccessTokenKey, Value: creds.AccessToken},
		{Key: RefreshTokenKey, Value: creds.RefreshToken},
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "setting_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).Create(&rows).Error
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to save credentials")
		return err
	}
	log.Debug().Msg("Credentials saved")
	return nil
}

func (r *gormCredentialRepo) Clear(ctx context.Context) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where("setting_key IN ?", []string{AccessTokenKey, RefreshTokenKey}).Delete(&Setting{}).Error
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to clear credentials")
		return err
	}
	log.Debug().Msg("Credentials cleared")
	return nil
}
