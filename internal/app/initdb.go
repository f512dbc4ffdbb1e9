package app

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/talkincode/packflow/internal/domain"
	"github.com/talkincode/packflow/pkg/common"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	superUsername   = "admin"
	defaultPassword = "packflow"
)

func (a *Application) checkSuper() {
	var operator domain.SysOpr
	err := a.gormDB.Where("username = ?", superUsername).First(&operator).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		hashedPassword, err := common.HashPassword(defaultPassword)
		if err != nil {
			zap.L().Error("failed to hash default password", zap.Error(err))
			return
		}
		if err := a.gormDB.Create(&domain.SysOpr{
			ID:        common.UUIDint64(),
			Realname:  "administrator",
			Mobile:    "0000",
			Email:     "N/A",
			Username:  superUsername,
			Password:  hashedPassword,
			Role:      domain.RoleAdmin,
			Status:    common.ENABLED,
			Remark:    "super",
			LastLogin: time.Now(),
		}).Error; err != nil {
			zap.L().Error("failed to create default admin", zap.Error(err))
		} else {
			zap.L().Info("initialized default admin account", zap.String("username", superUsername))
		}
		return
	case err != nil:
		zap.L().Error("failed to query admin", zap.Error(err))
		return
	}

	resetRole := operator.Role != domain.RoleAdmin
	resetStatus := !strings.EqualFold(operator.Status, common.ENABLED)
	if !resetRole && !resetStatus {
		return
	}

	updates := map[string]interface{}{
		"updated_at": time.Now(),
		"role":       domain.RoleAdmin,
		"status":     common.ENABLED,
	}
	if err := a.gormDB.Model(&domain.SysOpr{}).Where("id = ?", operator.ID).Updates(updates).Error; err != nil {
		zap.L().Error("failed to repair admin account", zap.Error(err))
		return
	}
	zap.L().Warn("repaired default admin account",
		zap.String("username", superUsername),
		zap.Bool("roleReset", resetRole),
		zap.Bool("statusEnabled", resetStatus))
}

// checkProducts seeds a small EPS catalog on an empty database
func (a *Application) checkProducts() {
	var total int64
	a.gormDB.Model(&domain.Product{}).Count(&total)
	if total > 0 {
		return
	}
	defaults := []domain.Product{
		{Name: "EPS Block 600x1200", Unit: "pcs", Sizes: domain.SectionList{"600x1200x100", "600x1200x50"}, Quantity: 40},
		{Name: "EPS Sheet 8x4", Unit: "pcs", Sizes: domain.SectionList{"2440x1220x25"}, Quantity: 120},
		{Name: "Moulded Fruit Box", Unit: "pcs", Sizes: domain.SectionList{"400x300x200"}, Quantity: 0},
		{Name: "Thermocol Packaging Insert", Unit: "pcs", Sizes: domain.SectionList{"custom"}, Quantity: 250},
	}
	for _, p := range defaults {
		p.ID = common.UUIDint64()
		p.RecomputeNetStock()
		p.CreatedAt = time.Now()
		p.UpdatedAt = time.Now()
		if err := a.gormDB.Create(&p).Error; err != nil {
			zap.L().Error("failed to create default product", zap.String("name", p.Name), zap.Error(err))
		} else {
			zap.L().Info("initialized default product", zap.String("name", p.Name))
		}
	}
}
