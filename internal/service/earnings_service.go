package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/mlm_go_server/config"
	"github.com/qs3c/mlm_go_server/internal/model"
	"github.com/qs3c/mlm_go_server/internal/model/dto"
	"github.com/qs3c/mlm_go_server/internal/pkg/logger"
	"github.com/qs3c/mlm_go_server/internal/repository"
)

var (
	ErrCommissionNotFound      = errors.New("佣金记录不存在")
	ErrInvalidStatusTransition = errors.New("佣金状态不允许此变更")
	ErrInvalidStatusFilter     = errors.New("无效的状态筛选条件")
	ErrInvalidDateRange        = errors.New("日期格式应为 YYYY-MM-DD，且开始日期不能晚于结束日期")
	ErrEarningsHeld            = errors.New("未完成 KYC 认证，超出额度的收益暂被冻结")
	ErrStorageUnavailable      = errors.New("文件存储服务未配置")
)

const dateLayout = "2006-01-02"

// csvHeader 收益导出文件表头
var csvHeader = []string{"id", "date", "from_member", "level", "amount", "status"}

// commissionTransitions 佣金只能单向推进
var commissionTransitions = map[string][]string{
	model.CommissionPending:    {model.CommissionProcessing, model.CommissionFailed},
	model.CommissionProcessing: {model.CommissionCompleted, model.CommissionFailed},
}

// CanTransitionCommission 判断佣金状态变更是否合法
func CanTransitionCommission(from, to string) bool {
	for _, s := range commissionTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func isCommissionStatus(status string) bool {
	switch status {
	case model.CommissionPending, model.CommissionProcessing, model.CommissionCompleted, model.CommissionFailed:
		return true
	}
	return false
}

// ExportStorage 导出文件的对象存储
type ExportStorage interface {
	UploadExport(userID int64, data []byte) (string, error)
	GetSignedURL(objectKey string, expireSeconds ...int64) (string, error)
}

// ComputeSummary 根据按状态汇总的金额计算收益概览
// 未认证会员的可发放金额为 min(pending+processing, max(0, cap-completed))
func ComputeSummary(sums map[string]decimal.Decimal, kycStatus string, kycCap decimal.Decimal) *dto.EarningsSummaryResponse {
	completed := sums[model.CommissionCompleted]
	pending := sums[model.CommissionPending]
	processing := sums[model.CommissionProcessing]
	outstanding := pending.Add(processing)

	payable := outstanding
	if kycStatus != model.KYCVerified {
		room := decimal.Max(decimal.Zero, kycCap.Sub(completed))
		payable = decimal.Min(outstanding, room)
	}
	held := outstanding.Sub(payable)

	return &dto.EarningsSummaryResponse{
		TotalEarnings:  completed.Round(2),
		Pending:        pending.Round(2),
		Processing:     processing.Round(2),
		Failed:         sums[model.CommissionFailed].Round(2),
		PayableBalance: payable.Round(2),
		HeldAmount:     held.Round(2),
		EarningsCapped: held.IsPositive(),
		KYCStatus:      kycStatus,
		KYCCap:         kycCap.Round(2),
	}
}

type EarningsService struct {
	db             *gorm.DB
	commissionRepo *repository.CommissionRepository
	memberRepo     *repository.MemberRepository
	storage        ExportStorage
	kycCap         decimal.Decimal
	logger         *zap.Logger
}

// NewEarningsService storage 为 nil 时导出链接不可用
func NewEarningsService(
	db *gorm.DB,
	commissionRepo *repository.CommissionRepository,
	memberRepo *repository.MemberRepository,
	storage ExportStorage,
	cfg *config.Config,
	log *zap.Logger,
) *EarningsService {
	kycCap := cfg.Commission.KYCEarningsCap
	if kycCap <= 0 {
		kycCap = 50
	}
	return &EarningsService{
		db:             db,
		commissionRepo: commissionRepo,
		memberRepo:     memberRepo,
		storage:        storage,
		kycCap:         decimal.NewFromFloat(kycCap).Round(2),
		logger:         logger.OrNop(log),
	}
}

// KYCCap 未认证会员的可发放上限
func (s *EarningsService) KYCCap() decimal.Decimal {
	return s.kycCap
}

// ParseFilter 解析列表筛选条件，date_to 包含当天
func ParseFilter(recipientID int64, status, dateFrom, dateTo string) (repository.CommissionFilter, error) {
	filter := repository.CommissionFilter{RecipientID: recipientID}

	if status != "" && status != "all" {
		if !isCommissionStatus(status) {
			return filter, ErrInvalidStatusFilter
		}
		filter.Status = status
	}

	if dateFrom != "" {
		from, err := time.ParseInLocation(dateLayout, dateFrom, time.UTC)
		if err != nil {
			return filter, ErrInvalidDateRange
		}
		filter.DateFrom = &from
	}
	if dateTo != "" {
		to, err := time.ParseInLocation(dateLayout, dateTo, time.UTC)
		if err != nil {
			return filter, ErrInvalidDateRange
		}
		to = to.AddDate(0, 0, 1)
		filter.DateTo = &to
	}
	if filter.DateFrom != nil && filter.DateTo != nil && !filter.DateFrom.Before(*filter.DateTo) {
		return filter, ErrInvalidDateRange
	}

	return filter, nil
}

// List 会员收益明细
func (s *EarningsService) List(recipientID int64, req *dto.EarningsListRequest) (*dto.EarningsListResponse, error) {
	filter, err := ParseFilter(recipientID, req.StatusFilter, req.DateFrom, req.DateTo)
	if err != nil {
		return nil, err
	}
	page, limit := NormalizePage(req.Page, req.Limit)

	records, total, err := s.commissionRepo.List(filter, page, limit)
	if err != nil {
		return nil, err
	}

	return &dto.EarningsListResponse{
		Earnings:   toEarningItems(records),
		Total:      total,
		TotalPages: totalPages(total, limit),
		Page:       page,
	}, nil
}

// Summary 会员收益概览
func (s *EarningsService) Summary(recipientID int64) (*dto.EarningsSummaryResponse, error) {
	member, err := s.memberRepo.GetByID(recipientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}

	sums, err := s.commissionRepo.SumByStatus(recipientID)
	if err != nil {
		return nil, err
	}

	return ComputeSummary(sums, member.KYCStatus, s.kycCap), nil
}

// UpdateStatus 发放流程或后台推进佣金状态
// 未认证会员的佣金从 pending 推进时，已发放与发放中金额之和不能超过 KYC 上限
func (s *EarningsService) UpdateStatus(ctx context.Context, commissionID int64, to string) (*model.Commission, error) {
	if !isCommissionStatus(to) {
		return nil, ErrInvalidStatusTransition
	}

	var commission *model.Commission
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.commissionRepo.WithTx(tx)

		c, err := repo.GetByID(commissionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCommissionNotFound
			}
			return err
		}
		commission = c

		if c.Status == to {
			return nil
		}
		if !CanTransitionCommission(c.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, c.Status, to)
		}

		if c.Status == model.CommissionPending && to != model.CommissionFailed {
			if err := s.checkHeld(tx, c); err != nil {
				return err
			}
		}

		updated, err := repo.UpdateStatusFrom(c.ID, c.Status, to)
		if err != nil {
			return err
		}
		if !updated {
			return fmt.Errorf("%w: status changed concurrently", ErrInvalidStatusTransition)
		}

		s.logger.Info("commission status updated",
			zap.Int64("commission_id", c.ID),
			zap.String("from", c.Status),
			zap.String("to", to),
		)
		c.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}
	return commission, nil
}

// checkHeld 锁定收益人后检查 KYC 额度
func (s *EarningsService) checkHeld(tx *gorm.DB, c *model.Commission) error {
	member, err := s.memberRepo.WithTx(tx).GetByIDForUpdate(c.RecipientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMemberNotFound
		}
		return err
	}
	if member.KYCVerified() {
		return nil
	}

	sums, err := s.commissionRepo.WithTx(tx).SumByStatus(c.RecipientID)
	if err != nil {
		return err
	}
	committed := sums[model.CommissionCompleted].Add(sums[model.CommissionProcessing])
	if committed.Add(c.Amount).GreaterThan(s.kycCap) {
		s.logger.Info("commission held pending kyc",
			zap.Int64("commission_id", c.ID),
			zap.Int64("recipient_id", c.RecipientID),
			zap.String("committed", committed.StringFixed(2)),
			zap.String("amount", c.Amount.StringFixed(2)),
		)
		return ErrEarningsHeld
	}
	return nil
}

// FailByPayment 退款时作废该支付下尚未发放的佣金
func (s *EarningsService) FailByPayment(paymentID string) (int64, error) {
	return s.failByPayment(s.db, paymentID)
}

func (s *EarningsService) failByPayment(tx *gorm.DB, paymentID string) (int64, error) {
	n, err := s.commissionRepo.WithTx(tx).FailPendingByPayment(paymentID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("pending commissions failed by refund", zap.String("payment_id", paymentID), zap.Int64("count", n))
	}
	return n, nil
}

// ExportCSV 按筛选条件导出会员收益
func (s *EarningsService) ExportCSV(recipientID int64, req *dto.EarningsListRequest, w io.Writer) error {
	filter, err := ParseFilter(recipientID, req.StatusFilter, req.DateFrom, req.DateTo)
	if err != nil {
		return err
	}

	records, err := s.commissionRepo.ListAll(filter)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, item := range toEarningItems(records) {
		row := []string{
			strconv.FormatInt(item.ID, 10),
			item.Date.UTC().Format(dateLayout),
			item.FromMember,
			strconv.Itoa(item.Level),
			item.Amount.StringFixed(2),
			item.Status,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportToStorage 导出文件上传到对象存储并返回临时下载链接
func (s *EarningsService) ExportToStorage(recipientID int64, req *dto.EarningsListRequest) (*dto.ExportLinkResponse, error) {
	if s.storage == nil {
		return nil, ErrStorageUnavailable
	}

	var buf bytes.Buffer
	if err := s.ExportCSV(recipientID, req, &buf); err != nil {
		return nil, err
	}

	key, err := s.storage.UploadExport(recipientID, buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to upload export: %w", err)
	}
	url, err := s.storage.GetSignedURL(key, exportLinkTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign export url: %w", err)
	}

	return &dto.ExportLinkResponse{URL: url, ExpiresIn: exportLinkTTL}, nil
}

// exportLinkTTL 导出链接有效期（秒）
const exportLinkTTL int64 = 3600

// AdminList 后台佣金列表
func (s *EarningsService) AdminList(req *dto.AdminCommissionListRequest) ([]*dto.EarningItem, int64, error) {
	if req.Status != "" && !isCommissionStatus(req.Status) {
		return nil, 0, ErrInvalidStatusFilter
	}
	page, pageSize := NormalizePage(req.Page, req.PageSize)

	records, total, err := s.commissionRepo.List(repository.CommissionFilter{
		RecipientID: req.RecipientID,
		PaymentID:   req.PaymentID,
		Status:      req.Status,
	}, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return toEarningItems(records), total, nil
}

func toEarningItems(records []*model.Commission) []*dto.EarningItem {
	items := make([]*dto.EarningItem, len(records))
	for i, c := range records {
		item := &dto.EarningItem{
			ID:          c.ID,
			PaymentID:   c.PaymentID,
			Date:        c.CreatedAt,
			NewMemberID: c.NewMemberID,
			Level:       c.Level,
			Amount:      c.Amount.Round(2),
			Status:      c.Status,
		}
		if c.NewMember != nil {
			item.FromMember = c.NewMember.Username
		}
		items[i] = item
	}
	return items
}
