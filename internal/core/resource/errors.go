package resource

import "errors"

var (
	// ErrExecutorShutdown 执行器已停止
	ErrExecutorShutdown = errors.New("resource: executor is shut down")

	// ErrTimerStopped 定时执行器已停止
	ErrTimerStopped = errors.New("resource: timer executor is stopped")

	// ErrInvalidBinding 套接字绑定无效
	ErrInvalidBinding = errors.New("resource: invalid socket binding")
)
