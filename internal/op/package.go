package op

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tokengate/tokengate/internal/db"
	"github.com/tokengate/tokengate/internal/model"
	"github.com/tokengate/tokengate/internal/utils/cache"
)

var packageCache = cache.New[int, model.Package](16)

func PackageCreate(pkg *model.Package, ctx context.Context) error {
	if err := pkg.Validate(); err != nil {
		return err
	}
	pkg.CreatedAt = time.Now().Unix()
	if err := db.GetDB().WithContext(ctx).Create(pkg).Error; err != nil {
		return fmt.Errorf("failed to create package: %w", err)
	}
	packageCache.Set(pkg.ID, *pkg)
	return nil
}

func PackageGet(id int, ctx context.Context) (model.Package, error) {
	pkg, ok := packageCache.Get(id)
	if !ok {
		return model.Package{}, ErrPackageNotFound
	}
	return pkg, nil
}

func PackageList(ctx context.Context) ([]model.Package, error) {
	pkgs := make([]model.Package, 0, packageCache.Len())
	for _, pkg := range packageCache.GetAll() {
		pkgs = append(pkgs, pkg)
	}
	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].ID < pkgs[j].ID })
	return pkgs, nil
}

// PackageSetAvailable flips the availability flag, the only mutable field.
func PackageSetAvailable(id int, available bool, ctx context.Context) error {
	pkg, ok := packageCache.Get(id)
	if !ok {
		return ErrPackageNotFound
	}
	if pkg.Available == available {
		return nil
	}
	if err := db.GetDB().WithContext(ctx).Model(&model.Package{ID: id}).
		Update("available", available).Error; err != nil {
		return fmt.Errorf("failed to update package: %w", err)
	}
	pkg.Available = available
	packageCache.Set(id, pkg)
	return nil
}

func packageRefreshCache(ctx context.Context) error {
	pkgs := []model.Package{}
	if err := db.GetDB().WithContext(ctx).Find(&pkgs).Error; err != nil {
		return err
	}
	for _, pkg := range pkgs {
		packageCache.Set(pkg.ID, pkg)
	}
	return nil
}
