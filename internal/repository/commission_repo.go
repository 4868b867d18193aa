package repository

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/mlm_go_server/internal/model"
)

// CommissionFilter 佣金查询条件，DateTo 为不含的上界
type CommissionFilter struct {
	RecipientID int64
	PaymentID   string
	Status      string
	DateFrom    *time.Time
	DateTo      *time.Time
}

type CommissionRepository struct {
	db *gorm.DB
}

func NewCommissionRepository(db *gorm.DB) *CommissionRepository {
	return &CommissionRepository{db: db}
}

// WithTx 返回绑定到事务的 repository
func (r *CommissionRepository) WithTx(tx *gorm.DB) *CommissionRepository {
	return &CommissionRepository{db: tx}
}

// CreateBatch 批量写入佣金，(payment_id, level) 冲突时忽略，返回实际写入条数
func (r *CommissionRepository) CreateBatch(records []*model.Commission) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_id"}, {Name: "level"}},
		DoNothing: true,
	}).Create(&records)
	return result.RowsAffected, result.Error
}

func (r *CommissionRepository) GetByID(id int64) (*model.Commission, error) {
	var commission model.Commission
	err := r.db.Where("id = ?", id).First(&commission).Error
	if err != nil {
		return nil, err
	}
	return &commission, nil
}

func (r *CommissionRepository) ListByPayment(paymentID string) ([]*model.Commission, error) {
	var commissions []*model.Commission
	err := r.db.Where("payment_id = ?", paymentID).Order("level ASC").Find(&commissions).Error
	return commissions, err
}

func (r *CommissionRepository) applyFilter(query *gorm.DB, filter CommissionFilter) *gorm.DB {
	if filter.RecipientID > 0 {
		query = query.Where("recipient_id = ?", filter.RecipientID)
	}
	if filter.PaymentID != "" {
		query = query.Where("payment_id = ?", filter.PaymentID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.DateFrom != nil {
		query = query.Where("created_at >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("created_at < ?", *filter.DateTo)
	}
	return query
}

// List 分页查询佣金并带出触发佣金的新会员
func (r *CommissionRepository) List(filter CommissionFilter, page, pageSize int) ([]*model.Commission, int64, error) {
	var commissions []*model.Commission
	var total int64

	query := r.applyFilter(r.db.Model(&model.Commission{}), filter)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Preload("NewMember").Order("created_at DESC, id DESC").
		Offset(offset).Limit(pageSize).Find(&commissions).Error; err != nil {
		return nil, 0, err
	}

	return commissions, total, nil
}

// ListAll 不分页查询，用于导出
func (r *CommissionRepository) ListAll(filter CommissionFilter) ([]*model.Commission, error) {
	var commissions []*model.Commission
	err := r.applyFilter(r.db.Model(&model.Commission{}), filter).
		Preload("NewMember").Order("created_at DESC, id DESC").Find(&commissions).Error
	return commissions, err
}

// SumByStatus 按状态汇总某会员的佣金金额
func (r *CommissionRepository) SumByStatus(recipientID int64) (map[string]decimal.Decimal, error) {
	var rows []struct {
		Status string
		Total  decimal.Decimal
	}
	err := r.db.Model(&model.Commission{}).
		Select("status, COALESCE(SUM(amount), 0) AS total").
		Where("recipient_id = ?", recipientID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	sums := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		// 部分数据库以浮点数返回 SUM 结果
		sums[row.Status] = row.Total.Round(2)
	}
	return sums, nil
}

// UpdateStatusFrom 仅当当前状态为 from 时更新，返回是否更新
func (r *CommissionRepository) UpdateStatusFrom(id int64, from, to string) (bool, error) {
	result := r.db.Model(&model.Commission{}).Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return result.RowsAffected > 0, result.Error
}

// FailPendingByPayment 退款时将该支付下的待发放佣金置为 failed
func (r *CommissionRepository) FailPendingByPayment(paymentID string) (int64, error) {
	result := r.db.Model(&model.Commission{}).
		Where("payment_id = ? AND status = ?", paymentID, model.CommissionPending).
		Update("status", model.CommissionFailed)
	return result.RowsAffected, result.Error
}
