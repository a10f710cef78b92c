package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	groupstack "github.com/dep2p/go-groupstack"
)

func runCmd(g *globalFlags) *cobra.Command {
	var (
		dataDir     string
		diagnostics string
	)

	c := &cobra.Command{
		Use:   "run",
		Short: "部署协议栈与通道并保持运行，收到 SIGINT/SIGTERM 后退出",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			opts := []groupstack.Option{groupstack.WithConfig(cfg)}
			if dataDir != "" {
				opts = append(opts, groupstack.WithDataDir(dataDir))
			}
			if diagnostics != "" {
				opts = append(opts, groupstack.WithDiagnostics(diagnostics))
			}

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sub, err := groupstack.New(ctx, opts...)
			if err != nil {
				return err
			}
			if err := sub.Start(ctx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "stacks:   %v\n", sub.Stacks())
			fmt.Fprintf(out, "channels: %v\n", sub.Channels())
			if addr := sub.DiagnosticsAddr(); addr != "" {
				fmt.Fprintf(out, "diagnostics: http://%s/debug/introspect/services\n", addr)
			}

			<-ctx.Done()
			logger.Info("收到退出信号，正在关闭")
			return sub.Close()
		},
	}

	c.Flags().StringVar(&dataDir, "data-dir", "", "协议栈模型持久化目录（覆盖配置）")
	c.Flags().StringVar(&diagnostics, "diagnostics", "", "启用诊断 HTTP 服务并监听该地址")
	return c
}
