package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/mlm_go_server/internal/model"
)

type TierRepository struct {
	db *gorm.DB
}

func NewTierRepository(db *gorm.DB) *TierRepository {
	return &TierRepository{db: db}
}

// WithTx 返回绑定到事务的 repository
func (r *TierRepository) WithTx(tx *gorm.DB) *TierRepository {
	return &TierRepository{db: tx}
}

func (r *TierRepository) List(includeDisabled bool) ([]*model.Tier, error) {
	var tiers []*model.Tier
	query := r.db.Model(&model.Tier{})
	if !includeDisabled {
		query = query.Where("enabled = ?", true)
	}
	err := query.Order("price ASC, name ASC").Find(&tiers).Error
	return tiers, err
}

func (r *TierRepository) GetByName(name string) (*model.Tier, error) {
	var tier model.Tier
	err := r.db.Where("name = ?", name).First(&tier).Error
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

// CreateIfMissing 插入等级，已存在时不覆盖，返回是否插入
func (r *TierRepository) CreateIfMissing(tier *model.Tier) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(tier)
	return result.RowsAffected > 0, result.Error
}

func (r *TierRepository) Save(tier *model.Tier) error {
	return r.db.Save(tier).Error
}
