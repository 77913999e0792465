package workerpool

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"
)

// Installer 按content_hash缓存依赖安装结果
// 依赖集按版本不可变，同一hash只安装一次，之后命中缓存目录
type Installer struct {
	cacheDir string
	command  string
	logger   *zap.Logger
}

func NewInstaller(cacheDir, command string, logger *zap.Logger) *Installer {
	return &Installer{
		cacheDir: cacheDir,
		command:  command,
		logger:   logger,
	}
}

// EnsureInstalled 返回该hash对应的依赖目录，必要时先安装
// 安装失败以ErrDependencyInstall包装，冷启动据此上报DependencyError
func (i *Installer) EnsureInstalled(ctx context.Context, contentHash string, requirements []string) (string, error) {
	target := filepath.Join(i.cacheDir, contentHash)
	marker := filepath.Join(target, ".installed")

	if _, err := os.Stat(marker); err == nil {
		return target, nil
	}

	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("%w: create deps dir: %v", ErrDependencyInstall, err)
	}

	if len(requirements) > 0 {
		args := append([]string{"-m", "pip", "install", "--quiet", "--target", target}, requirements...)
		cmd := exec.CommandContext(ctx, i.command, args...)
		if out, err := cmd.CombinedOutput(); err != nil {
			// 残留的半成品目录会让下次重试从头开始
			_ = os.RemoveAll(target)
			return "", fmt.Errorf("%w: %v: %s", ErrDependencyInstall, err, string(out))
		}
		i.logger.Info("installed function dependencies",
			zap.String("content_hash", contentHash),
			zap.Int("requirements", len(requirements)))
	}

	if err := os.WriteFile(marker, []byte{}, 0o644); err != nil {
		return "", fmt.Errorf("%w: write marker: %v", ErrDependencyInstall, err)
	}
	return target, nil
}
