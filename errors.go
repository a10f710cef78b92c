package groupstack

import (
	"errors"

	"github.com/dep2p/go-groupstack/internal/core/catalog"
	"github.com/dep2p/go-groupstack/internal/core/lifecycle"
	"github.com/dep2p/go-groupstack/internal/core/metrics"
	"github.com/dep2p/go-groupstack/internal/core/registry"
	"github.com/dep2p/go-groupstack/internal/core/service"
	"github.com/dep2p/go-groupstack/pkg/types"
)

// 公共错误定义
//
// 内部包的错误都包装自这些哨兵错误，调用方用 errors.Is 匹配。
var (
	// ────────────────────────────────────────────────────────────────────────
	// 错误类别
	// ────────────────────────────────────────────────────────────────────────

	// ErrValidation 配置校验失败（编译器、导入、注册表参数）
	ErrValidation = types.ErrValidation

	// ErrNotFound 协议栈、协议层、服务单元或属性宿主不存在
	ErrNotFound = types.ErrNotFound

	// ────────────────────────────────────────────────────────────────────────
	// 编译与模型
	// ────────────────────────────────────────────────────────────────────────

	// ErrConverterUnsupported 属性声明了不支持的转换器，同时匹配 ErrValidation
	ErrConverterUnsupported = catalog.ErrConverterUnsupported

	// ErrDuplicateLayer 协议栈中已有同名协议层
	ErrDuplicateLayer = registry.ErrDuplicateLayer

	// ErrLayerNotFound 协议栈模型中没有该协议层
	ErrLayerNotFound = registry.ErrLayerNotFound

	// ErrStackNotFound 协议栈不存在
	ErrStackNotFound = registry.ErrStackNotFound

	// ErrAmbiguousOrder 旧记录无法确定协议层顺序
	ErrAmbiguousOrder = registry.ErrAmbiguousOrder

	// ────────────────────────────────────────────────────────────────────────
	// 服务单元
	// ────────────────────────────────────────────────────────────────────────

	// ErrServiceNotFound 服务单元未安装
	ErrServiceNotFound = service.ErrServiceNotFound

	// ErrMissingDependency 安装时必需的依赖未安装
	ErrMissingDependency = service.ErrMissingDependency

	// ErrDependencyCycle 必需或可选依赖构成环
	ErrDependencyCycle = service.ErrDependencyCycle

	// ErrDependentsStillPresent 仍有其他单元依赖
	ErrDependentsStillPresent = service.ErrDependentsStillPresent

	// ErrStartFailed 服务单元启动失败
	ErrStartFailed = service.ErrStartFailed

	// ErrConnectFailed 通道连接集群失败
	ErrConnectFailed = lifecycle.ErrConnectFailed

	// ────────────────────────────────────────────────────────────────────────
	// 指标
	// ────────────────────────────────────────────────────────────────────────

	// ErrUnknownAttribute 协议层类型及其父类型都没有该属性
	ErrUnknownAttribute = metrics.ErrUnknownAttribute

	// ErrLayerNotRunning 运行中的协议链里找不到该协议层
	ErrLayerNotRunning = metrics.ErrLayerNotFound

	// ErrChannelNotRunning 通道未启动
	ErrChannelNotRunning = metrics.ErrChannelNotRunning

	// ────────────────────────────────────────────────────────────────────────
	// 子系统生命周期
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted 子系统未启动
	ErrNotStarted = errors.New("subsystem not started")

	// ErrAlreadyStarted 子系统已启动
	ErrAlreadyStarted = errors.New("subsystem already started")

	// ErrClosed 子系统已关闭
	ErrClosed = errors.New("subsystem closed")
)
