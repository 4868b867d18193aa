package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/mlm_go_server/internal/model"
)

// MilestoneFilter 里程碑列表过滤条件
type MilestoneFilter struct {
	UserID int64
	Status string
}

type MilestoneRepository struct {
	db *gorm.DB
}

func NewMilestoneRepository(db *gorm.DB) *MilestoneRepository {
	return &MilestoneRepository{db: db}
}

// WithTx 返回绑定到事务的 repository
func (r *MilestoneRepository) WithTx(tx *gorm.DB) *MilestoneRepository {
	return &MilestoneRepository{db: tx}
}

// CreateIfAbsent 写入奖励，(user_id, milestone_count) 已存在时忽略，返回是否写入
func (r *MilestoneRepository) CreateIfAbsent(award *model.MilestoneAward) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "milestone_count"}},
		DoNothing: true,
	}).Create(award)
	return result.RowsAffected > 0, result.Error
}

func (r *MilestoneRepository) GetByID(id int64) (*model.MilestoneAward, error) {
	var award model.MilestoneAward
	err := r.db.Where("id = ?", id).First(&award).Error
	if err != nil {
		return nil, err
	}
	return &award, nil
}

func (r *MilestoneRepository) List(filter MilestoneFilter, page, pageSize int) ([]*model.MilestoneAward, int64, error) {
	var awards []*model.MilestoneAward
	var total int64

	query := r.db.Model(&model.MilestoneAward{})
	if filter.UserID > 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Preload("User").Order("achieved_date DESC, id DESC").
		Offset(offset).Limit(pageSize).Find(&awards).Error; err != nil {
		return nil, 0, err
	}

	return awards, total, nil
}

// ListByUser 会员的全部里程碑，按阈值升序
func (r *MilestoneRepository) ListByUser(userID int64) ([]*model.MilestoneAward, error) {
	var awards []*model.MilestoneAward
	err := r.db.Where("user_id = ?", userID).Order("milestone_count ASC").Find(&awards).Error
	return awards, err
}

// MarkPaid pending -> paid，返回是否更新
func (r *MilestoneRepository) MarkPaid(id int64, paidAt time.Time) (bool, error) {
	result := r.db.Model(&model.MilestoneAward{}).
		Where("id = ? AND status = ?", id, model.MilestonePending).
		Updates(map[string]interface{}{
			"status":  model.MilestonePaid,
			"paid_at": paidAt,
		})
	return result.RowsAffected > 0, result.Error
}
