package main

import (
	"github.com/spf13/cobra"

	"github.com/go-go-golems/jiminy/pkg/server"
)

func newServeCommand() *cobra.Command {
	var (
		configPath    string
		addr          string
		dbPath        string
		redisAddr     string
		redisGroup    string
		redisConsumer string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := server.LoadSettings(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				settings.Addr = addr
			}
			if dbPath != "" {
				settings.DBPath = dbPath
			}
			if redisAddr != "" {
				settings.Redis.Enabled = true
				settings.Redis.Addr = redisAddr
				if redisGroup != "" {
					settings.Redis.Group = redisGroup
				}
				if redisConsumer != "" {
					settings.Redis.Consumer = redisConsumer
				}
			}

			ctx := cmd.Context()
			srv, err := server.New(ctx, settings)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "yaml settings file")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite database path (overrides config)")
	cmd.Flags().StringVar(&redisAddr, "redis-addr", "", "enable Redis Streams bus at this address")
	cmd.Flags().StringVar(&redisGroup, "redis-group", "", "Redis consumer group")
	cmd.Flags().StringVar(&redisConsumer, "redis-consumer", "", "Redis consumer name")
	return cmd
}
