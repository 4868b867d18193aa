package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/mlm_go_server/internal/model"
)

// 推荐计数字段
const (
	CounterDirectReferrals = "direct_referrals"
	CounterTotalReferrals  = "total_referrals"
)

// MemberFilter 后台会员列表过滤条件
type MemberFilter struct {
	Search    string
	Tier      string
	Suspended *bool
	KYCStatus string
}

type MemberRepository struct {
	db *gorm.DB
}

func NewMemberRepository(db *gorm.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// WithTx 返回绑定到事务的 repository
func (r *MemberRepository) WithTx(tx *gorm.DB) *MemberRepository {
	return &MemberRepository{db: tx}
}

func (r *MemberRepository) Create(member *model.Member) error {
	return r.db.Create(member).Error
}

func (r *MemberRepository) GetByID(id int64) (*model.Member, error) {
	var member model.Member
	err := r.db.Where("id = ?", id).First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// GetByIDForUpdate 在事务内加行锁读取会员，SQLite 依赖库级写锁
func (r *MemberRepository) GetByIDForUpdate(id int64) (*model.Member, error) {
	var member model.Member
	query := r.db
	if r.db.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := query.Where("id = ?", id).First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *MemberRepository) GetByEmail(email string) (*model.Member, error) {
	var member model.Member
	err := r.db.Where("email = ?", email).First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *MemberRepository) GetByUsername(username string) (*model.Member, error) {
	var member model.Member
	err := r.db.Where("username = ?", username).First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *MemberRepository) GetByReferralCode(code string) (*model.Member, error) {
	var member model.Member
	err := r.db.Where("referral_code = ?", code).First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// GetSponsorID 只读取上线指针，用于向上遍历推荐链
func (r *MemberRepository) GetSponsorID(id int64) (*int64, error) {
	var member model.Member
	err := r.db.Select("id", "sponsor_id").Where("id = ?", id).First(&member).Error
	if err != nil {
		return nil, err
	}
	return member.SponsorID, nil
}

func (r *MemberRepository) GetByIDs(ids []int64) ([]*model.Member, error) {
	var members []*model.Member
	if len(ids) == 0 {
		return members, nil
	}
	err := r.db.Where("id IN ?", ids).Find(&members).Error
	return members, err
}

// ListChildren 获取一批会员的直推下级，推荐树按层查询
func (r *MemberRepository) ListChildren(sponsorIDs []int64) ([]*model.Member, error) {
	var members []*model.Member
	if len(sponsorIDs) == 0 {
		return members, nil
	}
	err := r.db.Where("sponsor_id IN ?", sponsorIDs).Order("created_at ASC, id ASC").Find(&members).Error
	return members, err
}

// ListDirectReferrals 分页获取直推会员
func (r *MemberRepository) ListDirectReferrals(sponsorID int64, page, pageSize int) ([]*model.Member, int64, error) {
	var members []*model.Member
	var total int64

	query := r.db.Model(&model.Member{}).Where("sponsor_id = ?", sponsorID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&members).Error; err != nil {
		return nil, 0, err
	}

	return members, total, nil
}

func (r *MemberRepository) List(filter MemberFilter, page, pageSize int) ([]*model.Member, int64, error) {
	var members []*model.Member
	var total int64

	query := r.db.Model(&model.Member{})

	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("username LIKE ? OR email LIKE ? OR wallet_address LIKE ?", like, like, like)
	}
	if filter.Tier != "" {
		query = query.Where("membership_tier = ?", filter.Tier)
	}
	if filter.Suspended != nil {
		query = query.Where("suspended = ?", *filter.Suspended)
	}
	if filter.KYCStatus != "" {
		query = query.Where("kyc_status = ?", filter.KYCStatus)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Order("id DESC").Offset(offset).Limit(pageSize).Find(&members).Error; err != nil {
		return nil, 0, err
	}

	return members, total, nil
}

func (r *MemberRepository) UpdateFields(id int64, fields map[string]interface{}) error {
	return r.db.Model(&model.Member{}).Where("id = ?", id).Updates(fields).Error
}

// SetSponsorIfEmpty 仅在会员尚无上线时写入，返回是否更新
func (r *MemberRepository) SetSponsorIfEmpty(id, sponsorID int64) (bool, error) {
	result := r.db.Model(&model.Member{}).Where("id = ? AND sponsor_id IS NULL", id).
		Update("sponsor_id", sponsorID)
	return result.RowsAffected > 0, result.Error
}

// UpdateKYCFrom 仅当当前 KYC 状态属于 from 时更新，返回是否更新
func (r *MemberRepository) UpdateKYCFrom(id int64, from []string, fields map[string]interface{}) (bool, error) {
	result := r.db.Model(&model.Member{}).Where("id = ? AND kyc_status IN ?", id, from).Updates(fields)
	return result.RowsAffected > 0, result.Error
}

// IncrementCounter 原子增加推荐计数并返回增加后的值
func (r *MemberRepository) IncrementCounter(id int64, counter string, delta int) (int, error) {
	if counter != CounterDirectReferrals && counter != CounterTotalReferrals {
		return 0, fmt.Errorf("unknown referral counter %q", counter)
	}

	err := r.db.Model(&model.Member{}).Where("id = ?", id).
		Update(counter, gorm.Expr(counter+" + ?", delta)).Error
	if err != nil {
		return 0, err
	}

	var value int
	err = r.db.Model(&model.Member{}).Where("id = ?", id).Select(counter).Row().Scan(&value)
	return value, err
}

// DowngradeExpired 将订阅到期的会员降为 affiliate
func (r *MemberRepository) DowngradeExpired(now time.Time) (int64, error) {
	result := r.db.Model(&model.Member{}).
		Where("subscription_expires_at IS NOT NULL AND subscription_expires_at < ? AND membership_tier <> ?", now, model.TierAffiliate).
		Updates(map[string]interface{}{
			"membership_tier":         model.TierAffiliate,
			"subscription_expires_at": nil,
		})
	return result.RowsAffected, result.Error
}

func (r *MemberRepository) ExistsByEmail(email string) (bool, error) {
	var count int64
	err := r.db.Model(&model.Member{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

func (r *MemberRepository) ExistsByUsername(username string) (bool, error) {
	var count int64
	err := r.db.Model(&model.Member{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}

func (r *MemberRepository) ExistsByReferralCode(code string) (bool, error) {
	var count int64
	err := r.db.Model(&model.Member{}).Where("referral_code = ?", code).Count(&count).Error
	return count > 0, err
}

// ExistsByWallet 检查钱包是否已被其他会员绑定
func (r *MemberRepository) ExistsByWallet(address string, excludeID int64) (bool, error) {
	var count int64
	err := r.db.Model(&model.Member{}).Where("wallet_address = ? AND id <> ?", address, excludeID).Count(&count).Error
	return count > 0, err
}
