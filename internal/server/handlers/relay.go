package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tokengate/tokengate/internal/meter"
	"github.com/tokengate/tokengate/internal/op"
	"github.com/tokengate/tokengate/internal/relay"
	"github.com/tokengate/tokengate/internal/server/middleware"
	"github.com/tokengate/tokengate/internal/server/resp"
	"github.com/tokengate/tokengate/internal/server/router"
)

func init() {
	router.NewGroupRouter("/v1").
		Use(middleware.AllocationAuth()).
		AddRoute(
			router.NewRoute("/chat/completions", http.MethodPost).
				Handle(chatCompletions),
		).
		AddRoute(
			router.NewRoute("/quota", http.MethodGet).
				Handle(getQuota),
		)
}

// chatCompletions is the metered inference proxy.
func chatCompletions(c *gin.Context) {
	apiKey := c.GetString("api_key")
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		resp.Error(c, http.StatusBadRequest, resp.ErrBadRequest)
		return
	}

	result, err := relaySvc.Forward(c.Request.Context(), apiKey, body)
	if err != nil {
		status, message := relayErrorStatus(err)
		resp.Error(c, status, message)
		return
	}
	c.Data(result.Status, "application/json", result.Body)
}

// getQuota reports the caller's own remaining quota.
func getQuota(c *gin.Context) {
	apiKey := c.GetString("api_key")
	usage, err := meter.ValidateUsage(apiKey, 0, c.Request.Context())
	if err != nil && !errors.Is(err, meter.ErrAllocationInactive) && !errors.Is(err, meter.ErrAllocationExpired) {
		status, message := relayErrorStatus(err)
		resp.Error(c, status, message)
		return
	}
	resp.Success(c, usage)
}

func relayErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, op.ErrAllocationNotFound):
		return http.StatusUnauthorized, resp.ErrUnauthorized
	case errors.Is(err, relay.ErrInvalidRequest):
		return http.StatusBadRequest, resp.ErrBadRequest
	case errors.Is(err, op.ErrInsufficientQuota):
		return http.StatusForbidden, resp.ErrQuotaExhausted
	case errors.Is(err, meter.ErrDailyLimitReached),
		errors.Is(err, meter.ErrAllocationInactive),
		errors.Is(err, meter.ErrAllocationExpired),
		errors.Is(err, relay.ErrModelNotAllowed):
		return http.StatusForbidden, err.Error()
	default:
		return http.StatusBadGateway, err.Error()
	}
}
