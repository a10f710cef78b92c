package service

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-groupstack/pkg/types"
)

// 容器错误定义
var (
	// ErrServiceNotFound 服务单元未安装
	ErrServiceNotFound = fmt.Errorf("service: unit not found: %w", types.ErrNotFound)

	// ErrMissingDependency 安装时依赖的单元不存在
	ErrMissingDependency = fmt.Errorf("service: missing dependency: %w", types.ErrNotFound)

	// ErrDuplicateService 同名单元已安装
	ErrDuplicateService = errors.New("service: unit already installed")

	// ErrDependentsStillPresent 仍有其他单元依赖该单元
	ErrDependentsStillPresent = errors.New("service: dependents still present")

	// ErrStartFailed 单元启动失败
	ErrStartFailed = errors.New("service: start failed")

	// ErrTypeMismatch 依赖值类型与注入槽位不符
	ErrTypeMismatch = errors.New("service: injected value has wrong type")

	// ErrNotBound 延迟槽位未绑定到运行中的单元
	ErrNotBound = errors.New("service: lazy value is not bound")

	// ErrDependencyCycle 安装后依赖图会出现环
	ErrDependencyCycle = fmt.Errorf("service: dependency cycle: %w", types.ErrValidation)

	// ErrContainerClosed 容器已关闭
	ErrContainerClosed = errors.New("service: container closed")
)
