package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	groupstack "github.com/dep2p/go-groupstack"
	"github.com/dep2p/go-groupstack/internal/core/export"
)

func exportCmd(g *globalFlags) *cobra.Command {
	var (
		output  string
		dataDir string
	)

	c := &cobra.Command{
		Use:   "export <stack>",
		Short: "把协议栈导出为有序的 add 命令",
		Long: "把协议栈导出为有序的 add 命令。\n" +
			"未指定 --output 时逐行打印命令文本，否则写入 protobuf 编码的命令列表。",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			opts := []groupstack.Option{groupstack.WithConfig(cfg)}
			if dataDir != "" {
				opts = append(opts, groupstack.WithDataDir(dataDir))
			}
			// 只导出模型，不启动通道
			cfg.Channels.Definitions = nil

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			sub, err := groupstack.New(ctx, opts...)
			if err != nil {
				return err
			}
			if err := sub.Start(ctx); err != nil {
				return err
			}
			defer sub.Close()

			cmds, err := sub.Export(args[0])
			if err != nil {
				return err
			}

			if output == "" {
				out := cmd.OutOrStdout()
				for _, c := range cmds {
					fmt.Fprintln(out, c.String())
				}
				return nil
			}
			data, err := export.Marshal(cmds)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", export.Summary(cmds), output)
			return nil
		},
	}

	c.Flags().StringVarP(&output, "output", "o", "", "写入 protobuf 编码的命令列表")
	c.Flags().StringVar(&dataDir, "data-dir", "", "从持久化目录读取协议栈模型（覆盖配置）")
	return c
}
