package metrics

import (
	"fmt"

	"github.com/dep2p/go-groupstack/internal/core/catalog"
	"github.com/dep2p/go-groupstack/pkg/types"
)

var (
	// ErrLayerNotFound 通道未运行、已关闭或不包含该协议层
	ErrLayerNotFound = fmt.Errorf("metrics: layer not found: %w", types.ErrNotFound)

	// ErrUnknownAttribute 协议层类型及其父类型都没有声明该指标
	ErrUnknownAttribute = catalog.ErrUnknownAttribute

	// ErrChannelNotRunning 轮询目标的通道没有运行
	ErrChannelNotRunning = fmt.Errorf("metrics: channel not running: %w", types.ErrNotFound)
)
