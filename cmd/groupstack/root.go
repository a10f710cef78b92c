package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	groupstack "github.com/dep2p/go-groupstack"
	"github.com/dep2p/go-groupstack/config"
	"github.com/dep2p/go-groupstack/pkg/lib/log"
)

var logger = log.Logger("groupstack/cmd")

// globalFlags 所有子命令共用的参数
type globalFlags struct {
	configFile string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	var g globalFlags

	cmd := &cobra.Command{
		Use:           "groupstack",
		Short:         "组通信协议栈的编译、导出与运行",
		Version:       groupstack.VersionInfo(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return log.Configure(os.Stderr, g.logLevel, g.logFormat)
		},
	}

	cmd.PersistentFlags().StringVarP(&g.configFile, "config", "c", "", "配置文件路径（.json/.yaml/.yml）")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "日志级别 (debug/info/warn/error)")
	cmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "text", "日志格式 (text/json)")

	cmd.AddCommand(
		validateCmd(&g),
		exportCmd(&g),
		runCmd(&g),
	)
	return cmd
}

// loadConfig 加载配置文件；命令行显式给出的日志参数优先于文件
func (g *globalFlags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if g.configFile == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.LoadFile(g.configFile)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if !flags.Changed("log-level") && !flags.Changed("log-format") {
		if err := log.Configure(os.Stderr, cfg.Log.Level, cfg.Log.Format); err != nil {
			return nil, err
		}
	} else {
		cfg.Log.Level = g.logLevel
		cfg.Log.Format = g.logFormat
	}
	return cfg, nil
}
