package metrics

import (
	"fmt"
	"strconv"

	"github.com/dep2p/go-groupstack/internal/core/catalog"
)

// Kind 规范化后的值类型
type Kind int

const (
	// KindUndefined 值不存在或无法输出
	KindUndefined Kind = iota
	KindBool
	KindInt32
	KindInt64
	KindFloat64
	KindString
)

// String 返回类型名
func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindBool:
		return "bool"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Value 指标值
//
// raw 的动态类型与 Kind 对应：bool、int32、int64、float64、string，Undefined 时为 nil。
type Value struct {
	kind Kind
	raw  any
}

// Undefined 未定义的值
var Undefined = Value{}

// Kind 返回值类型
func (v Value) Kind() Kind { return v.kind }

// Raw 返回规范化后的 Go 值
func (v Value) Raw() any { return v.raw }

// IsUndefined 是否未定义
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

// Float64 数值型与布尔型转换为 float64，其他类型返回 false
func (v Value) Float64() (float64, bool) {
	switch x := v.raw.(type) {
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// String 文本形式，Undefined 为 "undefined"
func (v Value) String() string {
	switch x := v.raw.(type) {
	case nil:
		return "undefined"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
	return fmt.Sprint(v.raw)
}

// normalize 按声明类型对访问函数的返回值做宽化/窄化
//
// 动态类型与声明不一致时返回 Undefined。
func normalize(cat *catalog.Catalog, spec catalog.AttributeSpec, v any) Value {
	if v == nil {
		return Undefined
	}
	switch spec.Class {
	case catalog.ClassBool:
		if b, ok := v.(bool); ok {
			return Value{kind: KindBool, raw: b}
		}
	case catalog.ClassInt8, catalog.ClassInt16, catalog.ClassInt32:
		switch n := v.(type) {
		case int8:
			return Value{kind: KindInt32, raw: int32(n)}
		case int16:
			return Value{kind: KindInt32, raw: int32(n)}
		case int32:
			return Value{kind: KindInt32, raw: n}
		}
	case catalog.ClassInt64:
		switch n := v.(type) {
		case int64:
			return Value{kind: KindInt64, raw: n}
		case int32:
			return Value{kind: KindInt64, raw: int64(n)}
		}
	case catalog.ClassFloat32, catalog.ClassFloat64:
		switch f := v.(type) {
		case float32:
			return Value{kind: KindFloat64, raw: float64(f)}
		case float64:
			return Value{kind: KindFloat64, raw: f}
		}
	case catalog.ClassText:
		if s, ok := v.(string); ok {
			return Value{kind: KindString, raw: s}
		}
	case catalog.ClassOpaque:
		if text, ok := cat.Text(spec.Converter, v); ok {
			return Value{kind: KindString, raw: text}
		}
		return Undefined
	}
	logger.Debug("指标值类型与声明不一致", "class", spec.Class, "type", fmt.Sprintf("%T", v))
	return Undefined
}
