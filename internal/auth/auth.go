package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"github.com/funcbase/engine/internal/biz/function"
)

// Identity 一次请求解析出的调用方身份
type Identity struct {
	UserID string
	Level  function.AuthLevel
}

// Resolver 把bearer token解析为调用方身份
// 身份体系本身不在引擎内，这里只定义引擎消费的最小接口
type Resolver interface {
	Resolve(token string) Identity
}

// StaticResolver 基于配置中单个管理token的解析器
// 空token视为匿名public；其余非管理token视为已认证用户，
// 用户ID取token摘要，同一token的并发租约由此聚到同一用户
type StaticResolver struct {
	adminToken string
}

func NewStaticResolver(adminToken string) *StaticResolver {
	return &StaticResolver{adminToken: adminToken}
}

func (r *StaticResolver) Resolve(token string) Identity {
	if token == "" {
		return Identity{UserID: "anonymous", Level: function.AuthLevelPublic}
	}
	if r.adminToken != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(r.adminToken)) == 1 {
		return Identity{UserID: "admin", Level: function.AuthLevelAdmin}
	}
	sum := sha256.Sum256([]byte(token))
	return Identity{
		UserID: fmt.Sprintf("user-%x", sum[:8]),
		Level:  function.AuthLevelAuth,
	}
}
