package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/samber/lo"
	"github.com/tokengate/tokengate/internal/meter"
	"github.com/tokengate/tokengate/internal/model"
	"github.com/tokengate/tokengate/internal/op"
	"github.com/tokengate/tokengate/internal/upstream"
	"github.com/tokengate/tokengate/internal/utils/log"
	"github.com/tokengate/tokengate/internal/utils/tokenizer"
)

var (
	ErrInvalidRequest  = errors.New("invalid inference request")
	ErrModelNotAllowed = errors.New("model not covered by this allocation")
)

// defaultCompletionReserve is the completion-side estimate when the caller
// does not set max_tokens.
const defaultCompletionReserve = 512

// Relay meters and forwards inference calls: estimate, validate, consume
// the estimate, forward, then reconcile against the usage the upstream
// actually reported.
type Relay struct {
	provider upstream.Provider
}

func New(provider upstream.Provider) *Relay {
	return &Relay{provider: provider}
}

// Result carries the upstream reply plus the post-reconcile quota state.
type Result struct {
	Status     int
	Body       []byte
	TokensUsed int64
	Usage      meter.Usage
}

type chatMessage struct {
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int64         `json:"max_tokens"`
}

type chatUsage struct {
	Usage struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
}

// Forward runs one metered inference call for the allocation behind apiKey.
// Metering errors come back as errors; upstream HTTP errors come back as a
// Result with the upstream status, fully refunded.
func (r *Relay) Forward(ctx context.Context, apiKey string, body []byte) (Result, error) {
	started := time.Now()

	var request chatRequest
	if err := json.Unmarshal(body, &request); err != nil || request.Model == "" {
		return Result{}, ErrInvalidRequest
	}

	allocation, err := op.AllocationGetByKey(apiKey, ctx)
	if err != nil {
		return Result{}, err
	}
	pkg, err := op.PackageGet(allocation.PackageID, ctx)
	if err == nil && pkg.ModelAccess != "" && pkg.ModelAccess != request.Model {
		return Result{}, fmt.Errorf("%w: %s", ErrModelNotAllowed, request.Model)
	}

	estimated := estimateTokens(request)
	if _, err := meter.ValidateUsage(apiKey, estimated, ctx); err != nil {
		return Result{}, err
	}
	if _, err := meter.ConsumeTokens(apiKey, estimated, ctx); err != nil {
		return Result{}, err
	}

	status, respBody, err := r.provider.ChatCompletion(ctx, body)
	if err != nil || status != http.StatusOK {
		// Upstream never ran the request, give the estimate back.
		usage, refundErr := meter.Reconcile(apiKey, estimated, 0, ctx)
		if refundErr != nil {
			log.Errorf("refund after failed upstream call: %v", refundErr)
		}
		r.record(ctx, allocation, request.Model, estimated, 0, started, fmt.Sprintf("upstream status %d", status), err)
		if err != nil {
			return Result{}, fmt.Errorf("upstream call failed: %w", err)
		}
		return Result{Status: status, Body: respBody, Usage: usage}, nil
	}

	actual := estimated
	var reported chatUsage
	if err := json.Unmarshal(respBody, &reported); err == nil && reported.Usage.TotalTokens > 0 {
		actual = reported.Usage.TotalTokens
	}

	usage, err := meter.Reconcile(apiKey, estimated, actual, ctx)
	if err != nil {
		log.Errorf("usage reconcile for allocation %d failed: %v", allocation.ID, err)
	}

	r.record(ctx, allocation, request.Model, estimated, actual, started, "", nil)
	return Result{
		Status:     status,
		Body:       augment(respBody, actual, usage),
		TokensUsed: actual,
		Usage:      usage,
	}, nil
}

// estimateTokens prices the request before upstream sees it: prompt tokens
// from the message contents plus the completion reserve.
func estimateTokens(request chatRequest) int64 {
	prompt := lo.SumBy(request.Messages, func(m chatMessage) int64 {
		return int64(tokenizer.CountTokens(m.Content))
	})
	reserve := request.MaxTokens
	if reserve <= 0 {
		reserve = defaultCompletionReserve
	}
	return prompt + reserve
}

// augment grafts the quota snapshot onto the upstream JSON body. A body
// that does not parse is returned untouched.
func augment(body []byte, tokensUsed int64, usage meter.Usage) []byte {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return body
	}
	quota, err := json.Marshal(map[string]int64{
		"tokens_used":      tokensUsed,
		"remaining_tokens": usage.Remaining,
		"daily_remaining":  usage.DailyRemaining,
	})
	if err != nil {
		return body
	}
	payload["quota"] = quota
	augmented, err := json.Marshal(payload)
	if err != nil {
		return body
	}
	return augmented
}

func (r *Relay) record(ctx context.Context, allocation model.Allocation, modelID string, estimated, actual int64, started time.Time, failure string, callErr error) {
	elapsed := time.Since(started)
	errText := failure
	if callErr != nil {
		errText = callErr.Error()
	}
	if err := op.UsageLogAdd(ctx, model.UsageLog{
		Time:            started.Unix(),
		AllocationID:    allocation.ID,
		UserID:          allocation.UserID,
		Model:           modelID,
		EstimatedTokens: estimated,
		ActualTokens:    actual,
		UseTime:         elapsed.Milliseconds(),
		Error:           errText,
	}); err != nil {
		log.Errorf("failed to record usage log: %v", err)
	}

	metrics := model.StatsMetrics{
		TokensConsumed: actual,
		WaitTime:       elapsed.Milliseconds(),
	}
	if errText == "" {
		metrics.RequestSuccess = 1
	} else {
		metrics.RequestFailed = 1
	}
	op.StatsUpdate(metrics)
}
