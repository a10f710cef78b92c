package service

import "fmt"

// ============================================================================
//                              单元状态与模式
// ============================================================================

// State 服务单元状态
type State int32

const (
	// StateDown 已安装，未启动
	StateDown State = iota

	// StateStarting 正在启动依赖或自身
	StateStarting

	// StateUp 运行中，产出值可用
	StateUp

	// StateStopping 正在停止
	StateStopping

	// StateFailed 上次启动失败，下一次 Acquire 会重试
	StateFailed

	// StateRemoved 已卸载
	StateRemoved
)

// String 返回状态字符串表示
func (s State) String() string {
	switch s {
	case StateDown:
		return "down"
	case StateStarting:
		return "starting"
	case StateUp:
		return "up"
	case StateStopping:
		return "stopping"
	case StateFailed:
		return "failed"
	case StateRemoved:
		return "removed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Mode 启动模式
type Mode int

const (
	// ModeOnDemand 有引用时才启动（默认）
	ModeOnDemand Mode = iota

	// ModeActive 安装后由容器持有一个引用，保持运行
	ModeActive
)

// String 返回模式字符串表示
func (m Mode) String() string {
	switch m {
	case ModeOnDemand:
		return "on-demand"
	case ModeActive:
		return "active"
	default:
		return fmt.Sprintf("unknown(%d)", m)
	}
}

// EdgeKind 依赖边类型
type EdgeKind int

const (
	// EdgeRequired 必需依赖
	EdgeRequired EdgeKind = iota
	// EdgeOptional 可选依赖
	EdgeOptional
	// EdgeLazy 延迟依赖
	EdgeLazy
)

// String 返回依赖边类型字符串表示
func (k EdgeKind) String() string {
	switch k {
	case EdgeRequired:
		return "required"
	case EdgeOptional:
		return "optional"
	case EdgeLazy:
		return "lazy"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}
