package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/answerforge/answerforge/config"
	"github.com/answerforge/answerforge/internal/store"
	"github.com/answerforge/answerforge/internal/tools"
	"github.com/answerforge/answerforge/provider"
)

func toolsCMD() *cobra.Command {
	var cfgPath string
	var cmdTools = &cobra.Command{
		Use:   "tools",
		Short: "Run the tool server on stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			ctx := cmd.Context()

			st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
			if err != nil {
				return err
			}
			llm, err := provider.New(cfg.LLM)
			if err != nil {
				return err
			}
			registry := tools.NewRegistry(st, llm)
			return tools.NewServer(registry, os.Stdin, os.Stdout).Serve(ctx)
		},
	}
	cmdTools.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return cmdTools
}
