package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/khushi89012/syook/common/logging"
	"github.com/khushi89012/syook/common/messaging"
	natsclient "github.com/khushi89012/syook/common/messaging/nats"
)

var (
	watchURL     string
	watchSubject string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the listener's live events from NATS",
	Long: `Subscribe to the subjects the listener publishes on and print each
event as "<subject> <json>" until interrupted. The listener must run with
nats.enabled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadedConfig()
		if err != nil {
			return err
		}
		url := c.NATS.URL
		if cmd.Flags().Changed("nats-url") {
			url = watchURL
		}

		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = url
		natsCfg.Name = "timeseries-emitter-watch"
		natsCfg.Logger = logger.Logger

		client, err := natsclient.NewClient(natsCfg)
		if err != nil {
			return err
		}
		defer client.Close()

		out := cmd.OutOrStdout()
		var mu sync.Mutex
		sub, err := client.Subscribe(watchSubject, func(_ context.Context, msg *messaging.Message) error {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(out, "%s %s\n", msg.Subject, msg.Data)
			return nil
		})
		if err != nil {
			return err
		}

		logger.Info("watching", logging.Subject(sub.Subject()), slog.String("url", url))

		ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchURL, "nats-url", "", "NATS server URL (overrides config)")
	watchCmd.Flags().StringVar(&watchSubject, "subject", messaging.SubjectAll, "subject to subscribe to")
}
