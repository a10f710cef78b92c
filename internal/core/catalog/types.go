package catalog

import (
	"github.com/dep2p/go-groupstack/pkg/interfaces"
)

// Kind 协议层种类
type Kind int

const (
	// KindProtocol 普通协议层
	KindProtocol Kind = iota
	// KindTransport 传输层（栈底）
	KindTransport
	// KindRelay 跨站点中继层（栈顶）
	KindRelay
	// KindAbstract 仅作为父类型，不可直接使用
	KindAbstract
)

// String 返回种类名
func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindTransport:
		return "transport"
	case KindRelay:
		return "relay"
	case KindAbstract:
		return "abstract"
	default:
		return "unknown"
	}
}

// Class 指标值的声明类型
type Class int

const (
	ClassBool Class = iota
	ClassInt8
	ClassInt16
	ClassInt32
	ClassInt64
	ClassFloat32
	ClassFloat64
	ClassText
	// ClassOpaque 复合对象，需要文本转换器才能输出
	ClassOpaque
)

// String 返回类型名
func (c Class) String() string {
	switch c {
	case ClassBool:
		return "bool"
	case ClassInt8:
		return "int8"
	case ClassInt16:
		return "int16"
	case ClassInt32:
		return "int32"
	case ClassInt64:
		return "int64"
	case ClassFloat32:
		return "float32"
	case ClassFloat64:
		return "float64"
	case ClassText:
		return "text"
	case ClassOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// Accessor 从协议层实例读取指标
//
// 返回值的动态类型必须与 AttributeSpec.Class 一致（ClassOpaque 除外）。
// 实例类型不匹配时返回 ok=false。访问函数只能读取原子量或不可变字段。
type Accessor func(p interfaces.Protocol) (v any, ok bool)

// TextConverter 把复合对象转换为文本，值为 nil 时返回 ok=false
type TextConverter func(v any) (text string, ok bool)

// PropertyConverter 校验并规范化属性值
type PropertyConverter func(raw string) (string, error)

// PropertySpec 可配置属性
type PropertySpec struct {
	// Converter 转换器名（int32、bool、duration 等）
	Converter string

	// Default 默认值，为空表示由协议层实现决定
	Default string

	Description string
}

// AttributeSpec 可读指标
type AttributeSpec struct {
	Class Class
	Get   Accessor

	// Converter 复合对象的文本转换器名，仅 ClassOpaque 使用
	Converter string

	Description string
}

// LayerType 协议层类型
type LayerType struct {
	// Name 类型名，可带包前缀，如 "pbcast.GMS"
	Name string

	Kind Kind

	// Parent 父类型名，为空表示链顶
	Parent string

	// StateTransfer 是否支持状态传输
	StateTransfer bool

	Properties map[string]PropertySpec
	Attributes map[string]AttributeSpec
}
