package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tokengate/tokengate/internal/gateway"
	"github.com/tokengate/tokengate/internal/model"
	"github.com/tokengate/tokengate/internal/op"
	"github.com/tokengate/tokengate/internal/pricing"
	"github.com/tokengate/tokengate/internal/server/middleware"
	"github.com/tokengate/tokengate/internal/server/resp"
	"github.com/tokengate/tokengate/internal/server/router"
)

func init() {
	router.NewGroupRouter("/api/v1/order").
		Use(middleware.Auth()).
		Use(middleware.RequireJSON()).
		AddRoute(
			router.NewRoute("/price", http.MethodPost).
				Handle(priceOrder),
		).
		AddRoute(
			router.NewRoute("/create", http.MethodPost).
				Handle(createOrder),
		)
}

type orderBody struct {
	UserID      int64  `json:"user_id"`
	PackageID   int    `json:"package_id"`
	QuotaAmount int64  `json:"quota_amount"` // 0 = the package's amount
	Currency    string `json:"currency"`
}

func priceOrder(c *gin.Context) {
	var body orderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		resp.Error(c, http.StatusBadRequest, resp.ErrInvalidJSON)
		return
	}
	quote, _, ok := quoteOrder(c, body)
	if !ok {
		return
	}
	resp.Success(c, quote)
}

// createOrder commits a priced order: quote it, then open a pending payment
// request on the user's receiving address.
func createOrder(c *gin.Context) {
	var body orderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		resp.Error(c, http.StatusBadRequest, resp.ErrInvalidJSON)
		return
	}
	if body.UserID <= 0 {
		resp.Error(c, http.StatusBadRequest, resp.ErrInvalidParam)
		return
	}
	quote, pkg, ok := quoteOrder(c, body)
	if !ok {
		return
	}
	request, err := payGateway.CreateRequest(c.Request.Context(), body.UserID, pkg, quote)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrAmbiguousAmount),
			errors.Is(err, gateway.ErrBelowMinimum):
			resp.Error(c, http.StatusConflict, err.Error())
		default:
			resp.Error(c, http.StatusInternalServerError, err.Error())
		}
		return
	}
	resp.Success(c, request)
}

func quoteOrder(c *gin.Context, body orderBody) (quote model.OrderQuote, pkg model.Package, ok bool) {
	p, err := op.PackageGet(body.PackageID, c.Request.Context())
	if err != nil || !p.Available {
		resp.Error(c, http.StatusNotFound, resp.ErrResourceNotFound)
		return quote, pkg, false
	}
	quotaAmount := body.QuotaAmount
	if quotaAmount <= 0 {
		quotaAmount = p.QuotaAmount
	}
	q, err := calculator.Quote(c.Request.Context(), p.ModelAccess, quotaAmount, body.Currency)
	if err != nil {
		switch {
		case errors.Is(err, pricing.ErrOrderTooLarge),
			errors.Is(err, pricing.ErrOrderTooSmall),
			errors.Is(err, pricing.ErrBelowMinAmount),
			errors.Is(err, pricing.ErrUnknownCurrency):
			resp.Error(c, http.StatusBadRequest, err.Error())
		default:
			resp.Error(c, http.StatusBadGateway, err.Error())
		}
		return quote, pkg, false
	}
	return q, p, true
}
