package function

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Manifest 函数文件旁的声明清单（<name>.manifest.json）
// 一个源文件可以声明多个函数，共享同一依赖集
type Manifest struct {
	Functions []ManifestFunction `json:"functions"`
	// Requirements 声明的依赖，按版本不可变，安装结果以content_hash缓存
	Requirements []string `json:"requirements"`
}

type ManifestFunction struct {
	Name         string          `json:"name"`
	AuthLevel    AuthLevel       `json:"auth_level"`
	Tags         []string        `json:"tags"`
	InputSchema  json.RawMessage `json:"input_schema"`
	OutputSchema json.RawMessage `json:"output_schema"`
}

// Loader 扫描函数目录并注册发现的函数
type Loader struct {
	dir      string
	registry *Registry
	repo     Repo
	logger   *zap.Logger
}

func NewLoader(dir string, registry *Registry, repo Repo, logger *zap.Logger) *Loader {
	return &Loader{
		dir:      dir,
		registry: registry,
		repo:     repo,
		logger:   logger,
	}
}

// LoadAll 扫描目录下全部函数文件
// 单个文件加载失败不影响其他文件（文件内部仍然是原子安装）
func (l *Loader) LoadAll(ctx context.Context) error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("read functions dir %s: %w", l.dir, err)
	}

	var loaded, failed int
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".manifest.json") {
			continue
		}
		if err := l.LoadFile(ctx, filepath.Join(l.dir, entry.Name())); err != nil {
			failed++
			l.logger.Error("failed to load function file",
				zap.String("manifest", entry.Name()),
				zap.Error(err))
			continue
		}
		loaded++
	}

	l.logger.Info("function directory scanned",
		zap.String("dir", l.dir),
		zap.Int("loaded", loaded),
		zap.Int("failed", failed))
	return nil
}

// LoadFile 加载一个manifest及其源文件，整体成功或整体失败
func (l *Loader) LoadFile(ctx context.Context, manifestPath string) error {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}
	if len(manifest.Functions) == 0 {
		return fmt.Errorf("manifest declares no functions")
	}

	sourcePath := strings.TrimSuffix(manifestPath, ".manifest.json") + ".py"
	source, err := os.ReadFile(sourcePath)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}

	metas := make([]*FunctionMeta, 0, len(manifest.Functions))
	for _, fn := range manifest.Functions {
		meta, err := NewMeta(fn.Name, fn.AuthLevel, source, manifest.Requirements)
		if err != nil {
			return err
		}
		meta.Tags = append([]string(nil), fn.Tags...)
		meta.FilePath = sourcePath
		meta.InputSchema = fn.InputSchema
		meta.OutputSchema = fn.OutputSchema
		metas = append(metas, meta)
	}

	installed, err := l.registry.RegisterFile(metas)
	if err != nil {
		return err
	}

	// 镜像到持久层，同一文件一个事务，旧版本保留用于审计关联
	if err := l.repo.CreateBatch(ctx, installed); err != nil {
		l.logger.Error("failed to persist function versions",
			zap.String("manifest", manifestPath),
			zap.Error(err))
	}

	for _, meta := range installed {
		l.logger.Info("registered function",
			zap.String("function_name", meta.Name),
			zap.String("version_id", meta.VersionID),
			zap.String("content_hash", meta.ContentHash),
			zap.String("auth_level", string(meta.AuthLevel)))
	}
	return nil
}
