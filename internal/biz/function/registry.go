package function

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrFunctionNotFound  = errors.New("function not found")
	ErrDuplicateFunction = errors.New("duplicate function name")
)

// Registry 函数注册表，纯内存查找结构
// 按name插入或替换；替换不影响在途调用（它们持有各自捕获的VersionID）
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*FunctionMeta
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*FunctionMeta),
	}
}

// Register 插入或按name替换
// 若content_hash与现有版本一致则保留原VersionID（幂等重新注册不驱逐暖worker）
// 返回最终生效的元数据
func (r *Registry) Register(meta *FunctionMeta) *FunctionMeta {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(meta)
}

func (r *Registry) registerLocked(meta *FunctionMeta) *FunctionMeta {
	if existing, ok := r.byName[meta.Name]; ok && existing.ContentHash == meta.ContentHash {
		existing.LastLoadedAt = time.Now()
		return existing.clone()
	}
	installed := meta.clone()
	r.byName[meta.Name] = installed
	return installed.clone()
}

// RegisterFile 原子安装同一文件产出的全部元数据
// 任何一条校验失败（重名、元数据非法）则整批不生效
func (r *Registry) RegisterFile(metas []*FunctionMeta) ([]*FunctionMeta, error) {
	seen := make(map[string]struct{}, len(metas))
	for _, meta := range metas {
		if meta.Name == "" {
			return nil, fmt.Errorf("register file: function name is empty")
		}
		if !meta.AuthLevel.Valid() {
			return nil, fmt.Errorf("register file: invalid auth level %q for %s", meta.AuthLevel, meta.Name)
		}
		if _, dup := seen[meta.Name]; dup {
			return nil, fmt.Errorf("register file: %w: %s", ErrDuplicateFunction, meta.Name)
		}
		seen[meta.Name] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	installed := make([]*FunctionMeta, 0, len(metas))
	for _, meta := range metas {
		installed = append(installed, r.registerLocked(meta))
	}
	return installed, nil
}

// RegisterBuiltin 进程内注册内置函数，输入输出schema从声明的Go类型反射
// 源码与依赖参与content_hash的方式和目录函数一致，版本语义不做特殊化
func RegisterBuiltin[In any, Out any](r *Registry, name string, authLevel AuthLevel, filePath string, source []byte) (*FunctionMeta, error) {
	meta, err := NewMeta(name, authLevel, source, nil)
	if err != nil {
		return nil, err
	}
	meta.FilePath = filePath

	var in In
	var out Out
	if err := meta.ReflectSchemas(in, out); err != nil {
		return nil, err
	}
	return r.Register(meta), nil
}

// Get 按name查找当前版本
func (r *Registry) Get(name string) (*FunctionMeta, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}
	return meta.clone(), nil
}

// CurrentVersion 返回name当前生效的VersionID，不存在返回空串
func (r *Registry) CurrentVersion(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if meta, ok := r.byName[name]; ok {
		return meta.VersionID
	}
	return ""
}

// All 返回全部当前版本，顺序不保证
func (r *Registry) All() []*FunctionMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*FunctionMeta, 0, len(r.byName))
	for _, meta := range r.byName {
		out = append(out, meta.clone())
	}
	return out
}
