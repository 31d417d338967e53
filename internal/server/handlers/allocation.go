package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tokengate/tokengate/internal/op"
	"github.com/tokengate/tokengate/internal/server/middleware"
	"github.com/tokengate/tokengate/internal/server/resp"
	"github.com/tokengate/tokengate/internal/server/router"
)

func init() {
	router.NewGroupRouter("/api/v1/allocation").
		Use(middleware.Auth()).
		AddRoute(
			router.NewRoute("/list", http.MethodGet).
				Handle(listAllocations),
		).
		AddRoute(
			router.NewRoute("/cleanup", http.MethodPost).
				Handle(cleanupAllocations),
		).
		AddRoute(
			router.NewRoute("/usage-logs", http.MethodGet).
				Handle(listUsageLogs),
		)
}

func listAllocations(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		resp.Error(c, http.StatusBadRequest, resp.ErrInvalidParam)
		return
	}
	allocations, err := op.AllocationListByUser(userID, c.Request.Context())
	if err != nil {
		resp.Error(c, http.StatusInternalServerError, resp.ErrDatabase)
		return
	}
	resp.Success(c, allocations)
}

// cleanupAllocations runs the expiry sweep on demand, in addition to the
// periodic task.
func cleanupAllocations(c *gin.Context) {
	count, err := op.AllocationCleanupExpired(time.Now(), c.Request.Context())
	if err != nil {
		resp.Error(c, http.StatusInternalServerError, resp.ErrDatabase)
		return
	}
	resp.Success(c, gin.H{"deactivated": count})
}

func listUsageLogs(c *gin.Context) {
	allocationID, _ := strconv.Atoi(c.Query("allocation_id"))
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	logs, err := op.UsageLogList(c.Request.Context(), allocationID, page, pageSize)
	if err != nil {
		resp.Error(c, http.StatusInternalServerError, resp.ErrDatabase)
		return
	}
	resp.Success(c, logs)
}
