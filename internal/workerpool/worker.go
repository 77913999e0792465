package workerpool

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/funcbase/engine/internal/biz/function"
	"go.uber.org/zap"
)

//go:embed runner.py
var runnerScript []byte

// maxResponseLine 单行应答缓冲上限，结果大小校验在引擎侧另行执行
const maxResponseLine = 16 * 1024 * 1024

// FunctionError 用户函数内部抛出的错误（进程存活，协议正常）
type FunctionError struct {
	Message string
}

func (e *FunctionError) Error() string {
	return e.Message
}

// Handle 池管理的worker句柄
type Handle interface {
	VersionID() string
	Invoke(ctx context.Context, callID uint64, payload []byte, timeout time.Duration) ([]byte, error)
	Kill()
}

// SpawnFunc 冷启动一个隔离进程worker
type SpawnFunc func(ctx context.Context, meta *function.FunctionMeta) (Handle, error)

// processWorker 一个隔离进程，stdin/stdout行协议
type processWorker struct {
	versionID string
	cmd       *exec.Cmd
	stdin     *json.Encoder
	stdinPipe interface{ Close() error }
	scanner   *bufio.Scanner
	logger    *zap.Logger
}

func (w *processWorker) VersionID() string {
	return w.versionID
}

// Invoke 写一行请求并在硬超时内等待一行应答
// 超时或进程异常后句柄不可复用，调用方必须以unhealthy释放
func (w *processWorker) Invoke(ctx context.Context, callID uint64, payload []byte, timeout time.Duration) ([]byte, error) {
	req := workerRequest{CallID: callID, Payload: payload}
	if err := w.stdin.Encode(&req); err != nil {
		return nil, fmt.Errorf("%w: write request: %v", ErrWorkerExited, err)
	}

	type readResult struct {
		line []byte
		err  error
	}
	ch := make(chan readResult, 1)
	go func() {
		if !w.scanner.Scan() {
			err := w.scanner.Err()
			if err == nil {
				err = fmt.Errorf("stdout closed")
			}
			ch <- readResult{err: err}
			return
		}
		line := make([]byte, len(w.scanner.Bytes()))
		copy(line, w.scanner.Bytes())
		ch <- readResult{line: line}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		w.Kill()
		return nil, ctx.Err()
	case <-timer.C:
		w.Kill()
		return nil, ErrInvokeTimeout
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrWorkerExited, r.err)
		}
		var resp workerResponse
		if err := json.Unmarshal(r.line, &resp); err != nil {
			return nil, fmt.Errorf("%w: malformed response: %v", ErrWorkerExited, err)
		}
		if !resp.OK {
			return nil, &FunctionError{Message: resp.Error}
		}
		return resp.Result, nil
	}
}

// Kill 强制终止进程
func (w *processWorker) Kill() {
	_ = w.stdinPipe.Close()
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
	}
	// 回收进程表项
	go func() { _ = w.cmd.Wait() }()
}

// Spawner 冷启动工厂：安装依赖、拉起进程、等待就绪信号
type Spawner struct {
	runtimeCommand string
	startupTimeout time.Duration
	installer      *Installer
	logger         *zap.Logger

	runnerOnce sync.Once
	runnerPath string
	runnerErr  error
}

func NewSpawner(runtimeCommand string, startupTimeout time.Duration, installer *Installer, logger *zap.Logger) *Spawner {
	return &Spawner{
		runtimeCommand: runtimeCommand,
		startupTimeout: startupTimeout,
		installer:      installer,
		logger:         logger.With(zap.String("component", "worker-spawner")),
	}
}

func (s *Spawner) ensureRunner() (string, error) {
	s.runnerOnce.Do(func() {
		path := filepath.Join(s.installer.cacheDir, "runner.py")
		if err := os.MkdirAll(s.installer.cacheDir, 0o755); err != nil {
			s.runnerErr = err
			return
		}
		if err := os.WriteFile(path, runnerScript, 0o644); err != nil {
			s.runnerErr = err
			return
		}
		s.runnerPath = path
	})
	return s.runnerPath, s.runnerErr
}

// Spawn 执行一次冷启动，阻塞到进程就绪或启动超时
func (s *Spawner) Spawn(ctx context.Context, meta *function.FunctionMeta) (Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, s.startupTimeout)
	defer cancel()

	depsDir, err := s.installer.EnsureInstalled(ctx, meta.ContentHash, meta.Requirements)
	if err != nil {
		return nil, err
	}

	runnerPath, err := s.ensureRunner()
	if err != nil {
		return nil, fmt.Errorf("write runner script: %w", err)
	}

	cmd := exec.Command(s.runtimeCommand, runnerPath, meta.FilePath, meta.Name)
	cmd.Env = append(os.Environ(), "PYTHONPATH="+depsDir)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker process: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxResponseLine)

	worker := &processWorker{
		versionID: meta.VersionID,
		cmd:       cmd,
		stdin:     json.NewEncoder(stdin),
		stdinPipe: stdin,
		scanner:   scanner,
		logger:    s.logger,
	}

	if err := s.awaitReady(ctx, worker); err != nil {
		worker.Kill()
		return nil, err
	}

	s.logger.Info("worker started",
		zap.String("function_name", meta.Name),
		zap.String("version_id", meta.VersionID),
		zap.Int("pid", cmd.Process.Pid))
	return worker, nil
}

func (s *Spawner) awaitReady(ctx context.Context, worker *processWorker) error {
	ch := make(chan error, 1)
	go func() {
		if !worker.scanner.Scan() {
			ch <- fmt.Errorf("%w: no ready signal", ErrWorkerExited)
			return
		}
		var ready readySignal
		if err := json.Unmarshal(worker.scanner.Bytes(), &ready); err != nil || !ready.Ready {
			ch <- fmt.Errorf("%w: invalid ready signal", ErrWorkerExited)
			return
		}
		ch <- nil
	}()

	select {
	case <-ctx.Done():
		return ErrStartupTimeout
	case err := <-ch:
		return err
	}
}
