package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dep2p/go-groupstack/internal/core/catalog"
	"github.com/dep2p/go-groupstack/internal/core/compiler"
	"github.com/dep2p/go-groupstack/internal/core/toolkit"
)

func validateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "编译配置中的全部协议栈，不启动通道",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}

			cat := catalog.New()
			toolkit.RegisterBuiltins(cat)
			comp := compiler.New(cat, compiler.WithLookup(compiler.EnvLookup(cfg.Expressions)))

			out := cmd.OutOrStdout()
			var failed int
			for i := range cfg.Stacks.Definitions {
				def := &cfg.Stacks.Definitions[i]
				compiled, err := comp.Compile(def)
				if err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %s: %v\n", def.Name, err)
					continue
				}
				fmt.Fprintf(out, "OK   %s: %s %v\n", def.Name, compiled.Transport.Type, compiled.ProtocolNames())
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d stacks failed validation", failed, len(cfg.Stacks.Definitions))
			}
			logger.Debug("配置校验通过", "stacks", len(cfg.Stacks.Definitions))
			return nil
		},
	}
}
