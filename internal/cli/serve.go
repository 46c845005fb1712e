package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"trolley/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync server",
		Long: strings.TrimSpace(`
Run the HTTP sync server that trolley clients talk to when --server is set.

Configuration comes from the environment: TROLLEY_ADDR, TROLLEY_DATABASE_URL,
TROLLEY_JWT_SECRET, TROLLEY_STORAGE_DIR, TROLLEY_PUBLIC_BASE_URL and, when
multiple instances share one database, TROLLEY_AMQP_URL. Traces go to
TROLLEY_OTLP_ENDPOINT when that is set.
`),
		Example: strings.TrimSpace(`
# Local sqlite, default port
TROLLEY_JWT_SECRET=dev-secret trolley serve

# Postgres + RabbitMQ behind a public hostname
TROLLEY_DATABASE_URL=postgres://trolley:pw@db/trolley \
TROLLEY_AMQP_URL=amqp://guest:guest@mq/ \
TROLLEY_PUBLIC_BASE_URL=https://sync.example.com \
TROLLEY_JWT_SECRET=prod-secret trolley serve --addr :9000
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := server.LoadConfig()
			if err != nil {
				return writeErr(cmd, err)
			}
			if strings.TrimSpace(addr) != "" {
				cfg.Addr = strings.TrimSpace(addr)
			}
			s, err := server.New(cfg)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()
			return s.Run()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Bind address (overrides TROLLEY_ADDR)")
	return cmd
}
