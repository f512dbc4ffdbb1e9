package domain

import (
	"time"
)

// Operator roles
const (
	RoleAdmin      = "admin"
	RoleSales      = "sales"
	RoleProduction = "production"
	RolePackaging  = "packaging"
	RoleDispatch   = "dispatch"
)

var Roles = []string{RoleAdmin, RoleSales, RoleProduction, RolePackaging, RoleDispatch}

type SysOpr struct {
	ID        int64     `json:"id,string" form:"id"`
	Realname  string    `json:"realname" form:"realname"`
	Mobile    string    `json:"mobile" form:"mobile"`
	Email     string    `json:"email" form:"email"`
	Username  string    `gorm:"size:64;uniqueIndex" json:"username" form:"username"`
	Password  string    `json:"-" form:"password"`
	Role      string    `gorm:"size:20" json:"role" form:"role"`
	Status    string    `json:"status" form:"status"`
	Remark    string    `json:"remark" form:"remark"`
	LastLogin time.Time `json:"last_login" form:"last_login"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName Specify table name
func (SysOpr) TableName() string {
	return "sys_opr"
}

type SysOprLog struct {
	ID        int64     `json:"id,string"`
	OprName   string    `gorm:"size:64;index" json:"opr_name"`
	OprIp     string    `gorm:"size:64" json:"opr_ip"`
	OrderID   int64     `gorm:"index" json:"order_id,string"`
	OptAction string    `gorm:"size:64" json:"opt_action"`
	OptDesc   string    `json:"opt_desc"`
	OptTime   time.Time `gorm:"index" json:"opt_time"`
}

// TableName Specify table name
func (SysOprLog) TableName() string {
	return "sys_opr_log"
}
