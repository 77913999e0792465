package workerpool

import "errors"

var (
	// ErrDependencyInstall 冷启动依赖安装失败
	ErrDependencyInstall = errors.New("dependency installation failed")

	// ErrStartupTimeout 进程在启动超时内未发出就绪信号
	ErrStartupTimeout = errors.New("worker startup timed out")

	// ErrInvokeTimeout 执行超过硬超时，进程已被强制终止
	ErrInvokeTimeout = errors.New("worker invocation timed out")

	// ErrWorkerExited 进程在应答前退出或输出了非法应答
	ErrWorkerExited = errors.New("worker exited before responding")

	ErrPoolClosed = errors.New("worker pool is closed")
)
