package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/funcbase/engine/internal/biz/call"
	"github.com/funcbase/engine/internal/biz/function"
	"github.com/funcbase/engine/internal/ratelimit"
	"github.com/funcbase/engine/internal/workerpool"
	"github.com/yitter/idgenerator-go/idgen"
	"go.uber.org/zap"
)

// WorkerPool 引擎需要的worker池能力
type WorkerPool interface {
	Acquire(ctx context.Context, meta *function.FunctionMeta) (workerpool.Handle, error)
	Release(functionName string, h workerpool.Handle, healthy bool)
}

// Request 一次执行请求
type Request struct {
	FunctionName string
	Payload      json.RawMessage
	TriggerType  call.TriggerType
	TriggerID    *uint64
	CallerID     string
	CallerLevel  function.AuthLevel
	// Timeout 为0时使用引擎默认硬超时
	Timeout time.Duration
}

// Options 引擎参数
type Options struct {
	MaxPayloadBytes int64
	MaxResultBytes  int64
	DefaultTimeout  time.Duration
}

// Engine 函数执行引擎
// dispatch前的拒绝（NotFound/Forbidden/PayloadTooLarge/RateLimitExceeded）
// 不落审计行；dispatch后每次尝试恰好产生一条终态记录，失败不重试
type Engine struct {
	registry *function.Registry
	calls    call.Repo
	pool     WorkerPool
	limiter  ratelimit.Backend
	opts     Options
	logger   *zap.Logger
	nextID   func() uint64
}

func New(registry *function.Registry, calls call.Repo, pool WorkerPool, limiter ratelimit.Backend, opts Options, logger *zap.Logger) *Engine {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 120 * time.Second
	}
	return &Engine{
		registry: registry,
		calls:    calls,
		pool:     pool,
		limiter:  limiter,
		opts:     opts,
		logger:   logger.With(zap.String("component", "engine")),
		nextID:   func() uint64 { return uint64(idgen.NextId()) },
	}
}

// Execute 同步执行一次函数调用
// 返回的FunctionCall已处于终态；dispatch前被拒绝时返回(nil, *ExecError)
func (e *Engine) Execute(ctx context.Context, req Request) (*call.FunctionCall, error) {
	meta, err := e.registry.Get(req.FunctionName)
	if err != nil {
		return nil, call.NewExecError(call.ErrorTypeNotFound,
			fmt.Sprintf("function %s not found", req.FunctionName), err)
	}

	if !req.CallerLevel.Satisfies(meta.AuthLevel) {
		return nil, call.NewExecError(call.ErrorTypeForbidden,
			fmt.Sprintf("function %s requires %s access", meta.Name, meta.AuthLevel), nil)
	}

	if int64(len(req.Payload)) > e.opts.MaxPayloadBytes {
		return nil, call.NewExecError(call.ErrorTypePayloadTooLarge,
			fmt.Sprintf("payload exceeds %d bytes", e.opts.MaxPayloadBytes), nil)
	}

	// 空payload按JSON null下发，空字节会打穿worker的行协议
	if len(req.Payload) == 0 {
		req.Payload = nil
	}

	var lease *ratelimit.Lease
	if req.TriggerType.RateLimited() {
		lease, err = e.limiter.TryAcquire(ctx, req.CallerID)
		if err != nil {
			if errors.Is(err, ratelimit.ErrRateLimited) {
				return nil, call.NewExecError(call.ErrorTypeRateLimited,
					"too many concurrent function calls", err)
			}
			return nil, fmt.Errorf("acquire execution lease: %w", err)
		}
		defer func() {
			if rerr := e.limiter.Release(ctx, lease); rerr != nil {
				e.logger.Warn("failed to release execution lease",
					zap.String("user_id", req.CallerID), zap.Error(rerr))
			}
		}()
	}

	record := &call.FunctionCall{
		ID:           e.nextID(),
		FunctionName: meta.Name,
		VersionID:    meta.VersionID,
		TriggerType:  req.TriggerType,
		TriggerID:    req.TriggerID,
	}
	if req.CallerID != "" {
		requestedBy := req.CallerID
		record.RequestedBy = &requestedBy
	}
	record.Begin()

	if err := e.calls.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("create call record: %w", err)
	}

	result, execErr := e.dispatch(ctx, meta, record, req)
	if execErr != nil {
		record.MarkFailed(execErr.Type(), execErr.Message())
	} else {
		record.MarkSucceeded(result)
	}
	e.finalize(ctx, record)

	if execErr != nil {
		return record, execErr
	}
	return record, nil
}

// dispatch 取worker并执行，返回分类后的执行错误
func (e *Engine) dispatch(ctx context.Context, meta *function.FunctionMeta, record *call.FunctionCall, req Request) (json.RawMessage, *call.ExecError) {
	worker, err := e.pool.Acquire(ctx, meta)
	if err != nil {
		return nil, classifyStartupError(err)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.opts.DefaultTimeout
	}

	result, err := worker.Invoke(ctx, record.ID, req.Payload, timeout)
	if err != nil {
		// 函数内部异常不影响进程，句柄可复用；超时和进程异常则销毁
		var fnErr *workerpool.FunctionError
		e.pool.Release(meta.Name, worker, errors.As(err, &fnErr))
		return nil, classifyInvokeError(err)
	}

	if int64(len(result)) > e.opts.MaxResultBytes {
		e.pool.Release(meta.Name, worker, true)
		return nil, call.NewExecError(call.ErrorTypeResultTooLarge,
			fmt.Sprintf("result exceeds %d bytes", e.opts.MaxResultBytes), nil)
	}

	e.pool.Release(meta.Name, worker, true)
	return result, nil
}

// finalize 恰好一次落终态，竞争方已写入时仅记日志
func (e *Engine) finalize(ctx context.Context, record *call.FunctionCall) {
	if err := e.calls.Finalize(ctx, record); err != nil {
		if errors.Is(err, call.ErrAlreadyFinalized) {
			e.logger.Warn("call already finalized",
				zap.Uint64("call_id", record.ID),
				zap.String("function_name", record.FunctionName))
			return
		}
		e.logger.Error("failed to finalize call",
			zap.Uint64("call_id", record.ID),
			zap.String("function_name", record.FunctionName),
			zap.Error(err))
	}
}

func classifyStartupError(err error) *call.ExecError {
	switch {
	case errors.Is(err, workerpool.ErrDependencyInstall):
		return call.NewExecError(call.ErrorTypeDependency, "failed to install function dependencies", err)
	case errors.Is(err, workerpool.ErrStartupTimeout):
		return call.NewExecError(call.ErrorTypeTimeout, "worker startup timed out", err)
	default:
		return call.NewExecError(call.ErrorTypeExecution, "failed to start function worker", err)
	}
}

func classifyInvokeError(err error) *call.ExecError {
	var fnErr *workerpool.FunctionError
	switch {
	case errors.Is(err, workerpool.ErrInvokeTimeout):
		return call.NewExecError(call.ErrorTypeTimeout, "function execution timed out", err)
	case errors.As(err, &fnErr):
		return call.NewExecError(call.ErrorTypeExecution, fnErr.Message, nil)
	default:
		return call.NewExecError(call.ErrorTypeExecution, "worker failed during execution", err)
	}
}
