package builtins

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/funcbase/engine/internal/biz/function"
	"go.uber.org/zap"
)

//go:embed ping.py
var pingSource []byte

// PingInput ping入参
type PingInput struct {
	Echo string `json:"echo,omitempty"`
}

// PingOutput ping返回
type PingOutput struct {
	Pong bool   `json:"pong"`
	Echo string `json:"echo,omitempty"`
}

// Register 安装进程内声明的内置函数
// 源码写入dir后与目录函数走同一条注册与版本镜像路径，schema从Go类型反射
func Register(ctx context.Context, registry *function.Registry, repo function.Repo, dir string, logger *zap.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create builtins dir: %w", err)
	}

	path := filepath.Join(dir, "ping.py")
	if err := os.WriteFile(path, pingSource, 0o644); err != nil {
		return fmt.Errorf("write builtin source: %w", err)
	}

	meta, err := function.RegisterBuiltin[PingInput, PingOutput](registry, "ping", function.AuthLevelPublic, path, pingSource)
	if err != nil {
		return fmt.Errorf("register builtin ping: %w", err)
	}

	if err := repo.CreateBatch(ctx, []*function.FunctionMeta{meta}); err != nil {
		logger.Error("failed to persist builtin version",
			zap.String("function_name", meta.Name),
			zap.String("version_id", meta.VersionID),
			zap.Error(err))
	}

	logger.Info("registered builtin function",
		zap.String("function_name", meta.Name),
		zap.String("version_id", meta.VersionID),
		zap.String("content_hash", meta.ContentHash))
	return nil
}
