package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Deal is a cached deal record.
type Deal struct {
	ID              string  `gorm:"primaryKey" json:"id"`
	Title           string  `gorm:"index" json:"title"` // Indexed for offline search
	Store           string  `json:"store"`
	Price           float64 `json:"price"`
	OriginalPrice   float64 `json:"original_price"`
	DiscountPercent float64 `json:"discount_percent"`
	URL             string  `json:"url"`
	Data            string  `json:"data"`
}

// DealRepository defines decoupled operations for the local deal cache.
type DealRepository interface {
	Put(ctx context.Context, d Deal) error
	PutMany(ctx context.Context, deals []Deal) error
	GetByID(ctx context.Context, id string) (*Deal, error)
	List(ctx context.Context) ([]Deal, error)
	SearchByTitle(ctx context.Context, titleSubstr string) ([]Deal, error)
	Clear(ctx context.Context) error
	Replace(ctx context.Context, deals []Deal) error
}

// gormDealRepo is a GORM-backed implementation of DealRepository.
type gormDealRepo struct{ db *gorm.DB }

// NewDealRepository creates a DealRepository. Accepts *gorm.DB to avoid global access.
func NewDealRepository(db *gorm.DB) DealRepository { return &gormDealRepo{db: db} }

func (r *gormDealRepo) Put(ctx context.Context, d Deal) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&d).Error
}

func (r *gormDealRepo) PutMany(ctx context.Context, deals []Deal) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	if len(deals) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(deals, 100).Error
}

func (r *gormDealRepo) GetByID(ctx context.Context, id string) (*Deal, error) {
	if r.db == nil {
		return nil, fmt.Errorf("repository not initialized")
	}
	var deal Deal
	err := r.db.WithContext(ctx).First(&deal, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &deal, nil
}

func (r *gormDealRepo) List(ctx context.Context) ([]Deal, error) {
	if r.db == nil {
		return nil, fmt.Errorf("repository not initialized")
	}
	var deals []Deal
	if err := r.db.WithContext(ctx).Order("discount_percent DESC").Find(&deals).Error; err != nil {
		return nil, err
	}
	return deals, nil
}

func (r *gormDealRepo) SearchByTitle(ctx context.Context, titleSubstr string) ([]Deal, error) {
	if r.db == nil {
		return nil, fmt.Errorf("repository not initialized")
	}
	var deals []Deal
	if err := r.db.WithContext(ctx).Where("title LIKE ?", "%"+titleSubstr+"%").Find(&deals).Error; err != nil {
		return nil, err
	}
	return deals, nil
}

func (r *gormDealRepo) Clear(ctx context.Context) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	return r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(&Deal{}).Error
}

// Replace swaps the whole cache for deals in one transaction. On error the
// previous contents are kept.
func (r *gormDealRepo) Replace(ctx context.Context, deals []Deal) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(&Deal{}).Error; err != nil {
			return err
		}
		if len(deals) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(deals, 100).Error
	})
}
