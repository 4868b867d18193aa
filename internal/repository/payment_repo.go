package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/mlm_go_server/internal/model"
)

// PaymentFilter 后台支付列表过滤条件
type PaymentFilter struct {
	Status string
	UserID int64
}

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// WithTx 返回绑定到事务的 repository
func (r *PaymentRepository) WithTx(tx *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: tx}
}

func (r *PaymentRepository) Create(payment *model.Payment) error {
	return r.db.Create(payment).Error
}

func (r *PaymentRepository) GetByID(id string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.Where("id = ?", id).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetByIDForUpdate 在事务内加行锁读取支付，SQLite 不支持 FOR UPDATE，依赖其库级写锁
func (r *PaymentRepository) GetByIDForUpdate(id string) (*model.Payment, error) {
	var payment model.Payment
	query := r.db
	if r.db.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := query.Where("id = ?", id).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) ListByUser(userID int64, page, pageSize int) ([]*model.Payment, int64, error) {
	return r.List(PaymentFilter{UserID: userID}, page, pageSize)
}

func (r *PaymentRepository) List(filter PaymentFilter, page, pageSize int) ([]*model.Payment, int64, error) {
	var payments []*model.Payment
	var total int64

	query := r.db.Model(&model.Payment{})
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
	if err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&payments).Error; err != nil {
		return nil, 0, err
	}

	return payments, total, nil
}

// UpdateStatusFrom 仅当当前状态为 from 时更新，返回是否更新
func (r *PaymentRepository) UpdateStatusFrom(id, from, to string, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	result := r.db.Model(&model.Payment{}).Where("id = ? AND status = ?", id, from).Updates(updates)
	return result.RowsAffected > 0, result.Error
}

// MarkCommissionsProcessed 标记佣金已分配
func (r *PaymentRepository) MarkCommissionsProcessed(id string) error {
	return r.db.Model(&model.Payment{}).Where("id = ?", id).
		Update("commissions_processed", true).Error
}

// ListUnprocessedConfirmed 已确认但佣金未分配的支付，供补偿任务重试
func (r *PaymentRepository) ListUnprocessedConfirmed(limit int) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := r.db.Where("status = ? AND commissions_processed = ?", model.PaymentConfirmed, false).
		Order("created_at ASC").Limit(limit).Find(&payments).Error
	return payments, err
}

// ExpireWaiting 将超时未支付的订单置为 expired
func (r *PaymentRepository) ExpireWaiting(now time.Time) (int64, error) {
	result := r.db.Model(&model.Payment{}).
		Where("status = ? AND expires_at < ?", model.PaymentWaiting, now).
		Update("status", model.PaymentExpired)
	return result.RowsAffected, result.Error
}

// CountWaitingExpired 统计可过期的订单数量（只读，供对账工具预览）
func (r *PaymentRepository) CountWaitingExpired(now time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&model.Payment{}).
		Where("status = ? AND expires_at < ?", model.PaymentWaiting, now).
		Count(&count).Error
	return count, err
}
