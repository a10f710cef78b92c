package export

import (
	"fmt"

	"github.com/dep2p/go-groupstack/pkg/types"
)

var (
	// ErrInvalidCommand 命令地址或参数无法识别
	ErrInvalidCommand = fmt.Errorf("export: invalid command: %w", types.ErrValidation)

	// ErrInvalidEncoding 命令编码无法解析
	ErrInvalidEncoding = fmt.Errorf("export: invalid encoding: %w", types.ErrValidation)
)
