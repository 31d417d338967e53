package op

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tokengate/tokengate/internal/db"
	"github.com/tokengate/tokengate/internal/model"
	"gorm.io/gorm"
)

// Payment requests are not cached: the monitoring loops are the only hot
// readers and they must see committed status transitions.

func PaymentCreate(p *model.PaymentRequest, ctx context.Context) error {
	now := time.Now().Unix()
	p.Status = model.PaymentStatusPending
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := db.GetDB().WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create payment request: %w", err)
	}
	return nil
}

func PaymentGet(id string, ctx context.Context) (model.PaymentRequest, error) {
	var p model.PaymentRequest
	err := db.GetDB().WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.PaymentRequest{}, ErrPaymentNotFound
	}
	if err != nil {
		return model.PaymentRequest{}, err
	}
	return p, nil
}

func PaymentList(status model.PaymentStatus, page, pageSize int, ctx context.Context) ([]model.PaymentRequest, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	query := db.GetDB().WithContext(ctx)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var list []model.PaymentRequest
	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&list).Error
	return list, err
}

// PaymentListPending returns pending requests for one currency in creation
// order, the order the monitoring loop evaluates them in.
func PaymentListPending(currency string, ctx context.Context) ([]model.PaymentRequest, error) {
	var list []model.PaymentRequest
	err := db.GetDB().WithContext(ctx).
		Where("currency = ? AND status = ?", currency, model.PaymentStatusPending).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

// PaymentListPendingOnAddress returns pending requests watching one address,
// used to reject ambiguous amounts at creation time.
func PaymentListPendingOnAddress(address string, ctx context.Context) ([]model.PaymentRequest, error) {
	var list []model.PaymentRequest
	err := db.GetDB().WithContext(ctx).
		Where("address = ? AND status = ?", address, model.PaymentStatusPending).
		Find(&list).Error
	return list, err
}

// PaymentTxHashUsed reports whether a transaction hash has already credited
// some request. A hash confirms at most one request, ever.
func PaymentTxHashUsed(txHash string, ctx context.Context) (bool, error) {
	var count int64
	err := db.GetDB().WithContext(ctx).Model(&model.PaymentRequest{}).
		Where("tx_hash = ?", txHash).
		Count(&count).Error
	return count > 0, err
}

// PaymentConfirm transitions pending -> confirmed and records the matching
// transaction. The guarded UPDATE makes the transition race-free: only one
// caller can move a request out of pending.
func PaymentConfirm(id, txHash string, ctx context.Context) error {
	used, err := PaymentTxHashUsed(txHash, ctx)
	if err != nil {
		return err
	}
	if used {
		return ErrTxHashUsed
	}
	result := db.GetDB().WithContext(ctx).Model(&model.PaymentRequest{}).
		Where("id = ? AND status = ?", id, model.PaymentStatusPending).
		Updates(map[string]any{
			"status":     model.PaymentStatusConfirmed,
			"tx_hash":    txHash,
			"updated_at": time.Now().Unix(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPaymentNotPending
	}
	return nil
}

// PaymentMarkSettled transitions confirmed -> settled (terminal).
func PaymentMarkSettled(id string, ctx context.Context) error {
	result := db.GetDB().WithContext(ctx).Model(&model.PaymentRequest{}).
		Where("id = ? AND status = ?", id, model.PaymentStatusConfirmed).
		Updates(map[string]any{
			"status":     model.PaymentStatusSettled,
			"updated_at": time.Now().Unix(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("payment %s is not confirmed", id)
	}
	return nil
}

// PaymentResolveFailed is the manual reconciliation exit for a confirmed
// request whose settlement never succeeded.
func PaymentResolveFailed(id string, ctx context.Context) error {
	result := db.GetDB().WithContext(ctx).Model(&model.PaymentRequest{}).
		Where("id = ? AND status = ?", id, model.PaymentStatusConfirmed).
		Updates(map[string]any{
			"status":     model.PaymentStatusFailed,
			"updated_at": time.Now().Unix(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("payment %s is not confirmed", id)
	}
	return nil
}

// PaymentExpireStale moves pending requests past their TTL to expired and
// returns the rows that were transitioned.
func PaymentExpireStale(currency string, now time.Time, ctx context.Context) ([]model.PaymentRequest, error) {
	var stale []model.PaymentRequest
	if err := db.GetDB().WithContext(ctx).
		Where("currency = ? AND status = ? AND expires_at <= ?", currency, model.PaymentStatusPending, now.Unix()).
		Find(&stale).Error; err != nil {
		return nil, err
	}

	expired := make([]model.PaymentRequest, 0, len(stale))
	for _, p := range stale {
		result := db.GetDB().WithContext(ctx).Model(&model.PaymentRequest{}).
			Where("id = ? AND status = ?", p.ID, model.PaymentStatusPending).
			Updates(map[string]any{
				"status":     model.PaymentStatusExpired,
				"updated_at": now.Unix(),
			})
		if result.Error != nil {
			return expired, result.Error
		}
		if result.RowsAffected > 0 {
			p.Status = model.PaymentStatusExpired
			expired = append(expired, p)
		}
	}
	return expired, nil
}

// PaymentSettlementStats aggregates payment outcomes since a cutoff.
// A zero cutoff means all time.
func PaymentSettlementStats(since time.Time, ctx context.Context) (model.SettlementStats, error) {
	dbConn := db.GetDB().WithContext(ctx).Model(&model.PaymentRequest{})
	cutoff := int64(0)
	if !since.IsZero() {
		cutoff = since.Unix()
	}

	stats := model.SettlementStats{ByCurrency: make(map[string]float64)}

	type statusRow struct {
		Status model.PaymentStatus
		Count  int64
		USD    float64
	}
	var rows []statusRow
	if err := dbConn.
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount_usd), 0) AS usd").
		Where("created_at >= ?", cutoff).
		Group("status").
		Scan(&rows).Error; err != nil {
		return stats, err
	}
	for _, row := range rows {
		switch row.Status {
		case model.PaymentStatusSettled:
			stats.SettledCount = row.Count
			stats.SettledUSD = row.USD
		case model.PaymentStatusPending:
			stats.PendingCount = row.Count
		case model.PaymentStatusConfirmed:
			stats.ConfirmedCount = row.Count
		case model.PaymentStatusExpired:
			stats.ExpiredCount = row.Count
		}
	}

	type currencyRow struct {
		Currency string
		Crypto   float64
	}
	var curRows []currencyRow
	if err := db.GetDB().WithContext(ctx).Model(&model.PaymentRequest{}).
		Select("currency, COALESCE(SUM(amount_crypto), 0) AS crypto").
		Where("created_at >= ? AND status = ?", cutoff, model.PaymentStatusSettled).
		Group("currency").
		Scan(&curRows).Error; err != nil {
		return stats, err
	}
	for _, row := range curRows {
		stats.ByCurrency[row.Currency] = row.Crypto
	}
	return stats, nil
}
