package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/tokengate/tokengate/internal/model"
	"github.com/tokengate/tokengate/internal/op"
	"github.com/tokengate/tokengate/internal/server/middleware"
	"github.com/tokengate/tokengate/internal/server/resp"
	"github.com/tokengate/tokengate/internal/server/router"
)

func init() {
	router.NewGroupRouter("/api/v1/package").
		Use(middleware.Auth()).
		AddRoute(
			router.NewRoute("/list", http.MethodGet).
				Handle(listPackages),
		).
		AddRoute(
			router.NewRoute("/create", http.MethodPost).
				Use(middleware.RequireJSON()).
				Handle(createPackage),
		).
		AddRoute(
			router.NewRoute("/available", http.MethodPost).
				Use(middleware.RequireJSON()).
				Handle(setPackageAvailable),
		)
}

func listPackages(c *gin.Context) {
	packages, err := op.PackageList(c.Request.Context())
	if err != nil {
		resp.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	if c.Query("available") == "true" {
		packages = lo.Filter(packages, func(p model.Package, _ int) bool {
			return p.Available
		})
	}
	resp.Success(c, packages)
}

func createPackage(c *gin.Context) {
	var pkg model.Package
	if err := c.ShouldBindJSON(&pkg); err != nil {
		resp.Error(c, http.StatusBadRequest, resp.ErrInvalidJSON)
		return
	}
	if err := pkg.Validate(); err != nil {
		resp.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := op.PackageCreate(&pkg, c.Request.Context()); err != nil {
		resp.Error(c, http.StatusInternalServerError, resp.ErrDatabase)
		return
	}
	resp.Success(c, pkg)
}

func setPackageAvailable(c *gin.Context) {
	var body struct {
		ID        int   `json:"id"`
		Available *bool `json:"available"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Available == nil {
		resp.Error(c, http.StatusBadRequest, resp.ErrInvalidJSON)
		return
	}
	if err := op.PackageSetAvailable(body.ID, *body.Available, c.Request.Context()); err != nil {
		resp.Error(c, http.StatusNotFound, resp.ErrResourceNotFound)
		return
	}
	resp.Success(c, strconv.FormatBool(*body.Available))
}
