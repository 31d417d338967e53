package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tokengate/tokengate/internal/op"
	"github.com/tokengate/tokengate/internal/server/middleware"
	"github.com/tokengate/tokengate/internal/server/resp"
	"github.com/tokengate/tokengate/internal/server/router"
)

func init() {
	router.NewGroupRouter("/api/v1/stats").
		Use(middleware.Auth()).
		AddRoute(
			router.NewRoute("", http.MethodGet).
				Handle(getStats),
		)
}

func getStats(c *gin.Context) {
	resp.Success(c, gin.H{
		"total": op.StatsGetTotal(),
		"daily": op.StatsGetDaily(),
	})
}
