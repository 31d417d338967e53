package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tokengate/tokengate/internal/model"
	"github.com/tokengate/tokengate/internal/op"
	"github.com/tokengate/tokengate/internal/server/middleware"
	"github.com/tokengate/tokengate/internal/server/resp"
	"github.com/tokengate/tokengate/internal/server/router"
)

func init() {
	router.NewGroupRouter("/api/v1/payment").
		Use(middleware.Auth()).
		AddRoute(
			router.NewRoute("/list", http.MethodGet).
				Handle(listPayments),
		).
		AddRoute(
			router.NewRoute("/get/:id", http.MethodGet).
				Handle(getPayment),
		).
		AddRoute(
			router.NewRoute("/resettle/:id", http.MethodPost).
				Handle(resettlePayment),
		).
		AddRoute(
			router.NewRoute("/resolve-failed/:id", http.MethodPost).
				Handle(resolvePaymentFailed),
		).
		AddRoute(
			router.NewRoute("/stats", http.MethodGet).
				Handle(settlementStats),
		)
}

func listPayments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	status := model.PaymentStatus(c.Query("status"))
	payments, err := op.PaymentList(status, page, pageSize, c.Request.Context())
	if err != nil {
		resp.Error(c, http.StatusInternalServerError, resp.ErrDatabase)
		return
	}
	resp.Success(c, payments)
}

func getPayment(c *gin.Context) {
	payment, err := op.PaymentGet(c.Param("id"), c.Request.Context())
	if errors.Is(err, op.ErrPaymentNotFound) {
		resp.Error(c, http.StatusNotFound, resp.ErrResourceNotFound)
		return
	}
	if err != nil {
		resp.Error(c, http.StatusInternalServerError, resp.ErrDatabase)
		return
	}
	resp.Success(c, payment)
}

// resettlePayment is the operator recovery path for a confirmed payment
// whose settlement failed.
func resettlePayment(c *gin.Context) {
	if err := settler.Resettle(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, op.ErrPaymentNotFound) {
			resp.Error(c, http.StatusNotFound, resp.ErrResourceNotFound)
			return
		}
		resp.Error(c, http.StatusConflict, err.Error())
		return
	}
	resp.Success(c, "payment settled")
}

func resolvePaymentFailed(c *gin.Context) {
	if err := op.PaymentResolveFailed(c.Param("id"), c.Request.Context()); err != nil {
		resp.Error(c, http.StatusConflict, err.Error())
		return
	}
	resp.Success(c, "payment resolved as failed")
}

// settlementStats aggregates payment outcomes over ?period=24h|7d|30d|all
// (default all).
func settlementStats(c *gin.Context) {
	period := c.DefaultQuery("period", "all")
	var since time.Time
	switch period {
	case "24h":
		since = time.Now().Add(-24 * time.Hour)
	case "7d":
		since = time.Now().AddDate(0, 0, -7)
	case "30d":
		since = time.Now().AddDate(0, 0, -30)
	case "all":
	default:
		resp.Error(c, http.StatusBadRequest, resp.ErrInvalidParam)
		return
	}
	stats, err := op.PaymentSettlementStats(since, c.Request.Context())
	if err != nil {
		resp.Error(c, http.StatusInternalServerError, resp.ErrDatabase)
		return
	}
	stats.Period = period
	resp.Success(c, stats)
}
