package model

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Role 能力标签，只用于授权守卫，不参与业务数据
type Role string

const (
	RoleAdmin         Role = "admin"
	RoleOperator      Role = "operator"
	RoleRevenueSource Role = "revenue_source"
	RoleRebalancer    Role = "rebalancer"
)

var AllRoles = []Role{RoleAdmin, RoleOperator, RoleRevenueSource, RoleRebalancer}

func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range AllRoles {
		if r == known {
			return r, true
		}
	}
	return "", false
}

// RateLimitConfig 定义调用方的限流规则
type RateLimitConfig struct {
	QPS   float64 `json:"qps"`   // 每秒请求数
	Burst int     `json:"burst"` // 突发桶大小
}

// Actor 代表一个调用方 (收入来源、运营方、keeper)
type Actor struct {
	Name    string          `json:"name"`
	Address common.Address  `json:"address"` // 能力授予的主体
	APIKey  string          `json:"-"`       // 网关颁发的访问密钥
	Rate    RateLimitConfig `json:"rate_limit"`
}
