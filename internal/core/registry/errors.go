package registry

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-groupstack/pkg/types"
)

// 注册表错误定义
var (
	// ErrStackNotFound 协议栈不存在
	ErrStackNotFound = fmt.Errorf("registry: stack not found: %w", types.ErrNotFound)

	// ErrLayerNotFound 协议层不存在
	ErrLayerNotFound = fmt.Errorf("registry: layer not found: %w", types.ErrNotFound)

	// ErrDuplicateStack 协议栈已存在
	ErrDuplicateStack = errors.New("registry: stack already exists")

	// ErrDuplicateLayer 协议层已存在
	ErrDuplicateLayer = errors.New("registry: layer already exists")

	// ErrInvalidStack 协议栈定义无效
	ErrInvalidStack = fmt.Errorf("registry: invalid stack: %w", types.ErrValidation)

	// ErrAmbiguousOrder 持久化记录无法确定协议层顺序
	ErrAmbiguousOrder = errors.New("registry: layer order cannot be derived")

	// ErrCorruptRecord 持久化记录的顺序与协议层集合不一致
	ErrCorruptRecord = errors.New("registry: order list and layers disagree")
)
