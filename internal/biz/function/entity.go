package function

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
)

// FunctionMeta 已注册函数的一个不可变版本
// 重新上传同名函数会生成新的VersionID，旧版本保留用于执行历史关联
type FunctionMeta struct {
	Name         string
	AuthLevel    AuthLevel
	Tags         []string
	FilePath     string
	ContentHash  string
	VersionID    string
	Requirements []string
	InputSchema  json.RawMessage
	OutputSchema json.RawMessage
	LastLoadedAt time.Time
}

// NewMeta 根据源码与声明的依赖构造函数元数据
// content_hash覆盖源码字节和规范化后的依赖列表，依赖集按版本视为不可变
func NewMeta(name string, authLevel AuthLevel, source []byte, requirements []string) (*FunctionMeta, error) {
	if name == "" {
		return nil, fmt.Errorf("function name is empty")
	}
	if !authLevel.Valid() {
		return nil, fmt.Errorf("invalid auth level %q for function %s", authLevel, name)
	}
	return &FunctionMeta{
		Name:         name,
		AuthLevel:    authLevel,
		ContentHash:  ContentHash(source, requirements),
		VersionID:    uuid.NewString(),
		Requirements: append([]string(nil), requirements...),
		LastLoadedAt: time.Now(),
	}, nil
}

// ContentHash 计算源码+依赖的内容哈希
func ContentHash(source []byte, requirements []string) string {
	reqs := append([]string(nil), requirements...)
	sort.Strings(reqs)

	h := xxhash.New()
	_, _ = h.Write(source)
	_, _ = h.Write([]byte("\x00" + strings.Join(reqs, "\n")))
	return fmt.Sprintf("%016x", h.Sum64())
}

// ReflectSchemas 从声明的输入/输出类型生成JSON Schema
// 进程内注册的内置函数在注册时调用一次，不做运行时反射
func (m *FunctionMeta) ReflectSchemas(input any, output any) error {
	reflector := &jsonschema.Reflector{DoNotReference: true}

	if input != nil {
		schema, err := json.Marshal(reflector.Reflect(input))
		if err != nil {
			return fmt.Errorf("reflect input schema for %s: %w", m.Name, err)
		}
		m.InputSchema = schema
	}
	if output != nil {
		schema, err := json.Marshal(reflector.Reflect(output))
		if err != nil {
			return fmt.Errorf("reflect output schema for %s: %w", m.Name, err)
		}
		m.OutputSchema = schema
	}
	return nil
}

func (m *FunctionMeta) clone() *FunctionMeta {
	cp := *m
	cp.Tags = append([]string(nil), m.Tags...)
	cp.Requirements = append([]string(nil), m.Requirements...)
	return &cp
}
