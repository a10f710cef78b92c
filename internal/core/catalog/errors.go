package catalog

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-groupstack/pkg/types"
)

// 目录错误定义
var (
	// ErrTypeNotFound 协议层类型未注册
	ErrTypeNotFound = fmt.Errorf("catalog: layer type not found: %w", types.ErrNotFound)

	// ErrDuplicateType 协议层类型重复注册
	ErrDuplicateType = errors.New("catalog: layer type already registered")

	// ErrUnknownProperty 属性不属于该类型及其父类型
	ErrUnknownProperty = fmt.Errorf("catalog: unknown property: %w", types.ErrValidation)

	// ErrUnknownAttribute 指标不属于该类型及其父类型
	ErrUnknownAttribute = errors.New("catalog: unknown attribute")

	// ErrConverterUnsupported 属性声明的转换器不受支持
	ErrConverterUnsupported = fmt.Errorf("catalog: unsupported converter: %w", types.ErrValidation)

	// ErrInvalidValue 转换器拒绝属性值
	ErrInvalidValue = fmt.Errorf("catalog: invalid property value: %w", types.ErrValidation)
)
