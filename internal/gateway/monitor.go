package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tokengate/tokengate/internal/chain"
	"github.com/tokengate/tokengate/internal/conf"
	"github.com/tokengate/tokengate/internal/model"
	"github.com/tokengate/tokengate/internal/notify"
	"github.com/tokengate/tokengate/internal/op"
	"github.com/tokengate/tokengate/internal/utils/log"
)

// matchTolerance is the relative band within which an observed transfer
// amount counts as paying a quoted amount.
const matchTolerance = 0.01

// Settler turns a confirmed payment into delivered quota.
type Settler interface {
	Settle(ctx context.Context, payment model.PaymentRequest) error
}

// Monitor is the polling loop for one currency. Each tick sweeps expired
// requests, then tries to confirm the remaining pending ones against the
// chain indexer.
type Monitor struct {
	currency conf.Currency
	indexer  chain.Indexer
	settler  Settler
	notifier notify.Notifier
}

func NewMonitor(currency conf.Currency, indexer chain.Indexer, settler Settler, notifier notify.Notifier) *Monitor {
	return &Monitor{
		currency: currency,
		indexer:  indexer,
		settler:  settler,
		notifier: notifier,
	}
}

func (m *Monitor) Currency() string { return m.currency.Code }

func (m *Monitor) PollInterval() time.Duration {
	seconds := m.currency.PollSeconds
	if seconds <= 0 {
		seconds = 60
	}
	return time.Duration(seconds) * time.Second
}

// Tick runs one monitoring pass. Indexer failures abort the pass; the next
// tick retries, nothing is lost because confirmation is idempotent.
func (m *Monitor) Tick(ctx context.Context) error {
	expired, err := op.PaymentExpireStale(m.currency.Code, time.Now(), ctx)
	if err != nil {
		return fmt.Errorf("expiry sweep for %s failed: %w", m.currency.Code, err)
	}
	for _, p := range expired {
		m.notifier.Notify(ctx, notify.NewEvent(notify.EventPaymentExpired, p.ID, p.UserID,
			fmt.Sprintf("payment request expired unpaid (%.8f %s)", p.AmountCrypto, m.currency.Symbol)))
	}

	pending, err := op.PaymentListPending(m.currency.Code, ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	byAddress := make(map[string][]model.PaymentRequest)
	for _, p := range pending {
		byAddress[p.Address] = append(byAddress[p.Address], p)
	}

	for address, requests := range byAddress {
		transfers, err := m.indexer.IncomingTransfers(ctx, address)
		if err != nil {
			log.Warnf("indexer query for %s address %s failed: %v", m.currency.Code, address, err)
			continue
		}
		m.match(ctx, requests, transfers)
	}
	return nil
}

// match pairs pending requests with observed transfers in creation order.
// A transfer confirms a request when the amount is within tolerance, the
// confirmation count meets the rail's minimum and the hash is unused.
func (m *Monitor) match(ctx context.Context, requests []model.PaymentRequest, transfers []chain.Transfer) {
	for _, request := range requests {
		for _, transfer := range transfers {
			if !amountMatches(request.AmountCrypto, transfer.Amount) {
				continue
			}
			if transfer.Confirmations < int64(m.currency.MinConfirmations) {
				log.Debugf("payment %s: transfer %s has %d/%d confirmations",
					request.ID, transfer.TxHash, transfer.Confirmations, m.currency.MinConfirmations)
				continue
			}
			err := op.PaymentConfirm(request.ID, transfer.TxHash, ctx)
			if errors.Is(err, op.ErrTxHashUsed) {
				continue
			}
			if errors.Is(err, op.ErrPaymentNotPending) {
				break
			}
			if err != nil {
				log.Errorf("failed to confirm payment %s: %v", request.ID, err)
				break
			}
			log.Infof("payment %s confirmed by tx %s (%.8f %s)",
				request.ID, transfer.TxHash, transfer.Amount, m.currency.Symbol)
			m.notifier.Notify(ctx, notify.NewEvent(notify.EventPaymentConfirmed, request.ID, request.UserID,
				fmt.Sprintf("payment of %.8f %s confirmed by tx %s", transfer.Amount, m.currency.Symbol, transfer.TxHash)))

			request.Status = model.PaymentStatusConfirmed
			request.TxHash = transfer.TxHash
			if err := m.settler.Settle(ctx, request); err != nil {
				// Stays confirmed until an operator resettles or resolves it.
				log.Errorf("settlement of payment %s failed: %v", request.ID, err)
			}
			break
		}
	}
}

func amountMatches(quoted, observed float64) bool {
	if quoted <= 0 {
		return false
	}
	return math.Abs(observed-quoted)/quoted <= matchTolerance
}
