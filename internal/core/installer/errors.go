package installer

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-groupstack/pkg/types"
)

var (
	// ErrStackNotInstalled 协议栈未安装
	ErrStackNotInstalled = fmt.Errorf("installer: stack not installed: %w", types.ErrNotFound)

	// ErrDependencyCycle 协议栈之间的远端站点引用成环
	ErrDependencyCycle = errors.New("installer: remote site references form a cycle")
)
