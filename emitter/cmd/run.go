package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/khushi89012/syook/common/codec"
	"github.com/khushi89012/syook/emitter/internal/builder"
	"github.com/khushi89012/syook/emitter/internal/config"
	"github.com/khushi89012/syook/emitter/internal/runner"
	"github.com/khushi89012/syook/emitter/internal/sender"
)

var (
	sendHost     string
	sendPort     int
	sendInterval time.Duration
	sendMin      int
	sendMax      int
	sendDataFile string
	sendFake     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Send a batch every interval until interrupted",
	Long: `Send one batch immediately and then one per interval until SIGINT or SIGTERM.

Examples:
  # Use ./emitter.yaml or defaults
  emitter run

  # Faster, smaller batches against a remote listener
  emitter run --host listener.internal --interval 1s --min 5 --max 20`,
	RunE: runEmitter,
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a single batch and exit",
	RunE:  sendBatch,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sendCmd)

	for _, c := range []*cobra.Command{runCmd, sendCmd} {
		c.Flags().StringVar(&sendHost, "host", "", "listener host")
		c.Flags().IntVarP(&sendPort, "port", "p", 0, "listener TCP port")
		c.Flags().IntVar(&sendMin, "min", 0, "minimum records per batch")
		c.Flags().IntVar(&sendMax, "max", 0, "maximum records per batch")
		c.Flags().StringVarP(&sendDataFile, "data", "d", "", "JSON or YAML file with names, origins and destinations")
		c.Flags().BoolVar(&sendFake, "fake", false, "generate names and cities instead of using a dataset")
	}
	runCmd.Flags().DurationVarP(&sendInterval, "interval", "i", 0, "time between batches")
}

func runEmitter(cmd *cobra.Command, args []string) error {
	r, err := newRunner(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return r.Run(ctx)
}

func sendBatch(cmd *cobra.Command, args []string) error {
	r, err := newRunner(cmd)
	if err != nil {
		return err
	}

	n, err := r.SendOnce(cmdContext(cmd))
	if err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sent %d records\n", n)
	return nil
}

// newRunner applies flag overrides to the loaded config and wires a runner.
func newRunner(cmd *cobra.Command) (*runner.Runner, error) {
	base, err := loadedConfig()
	if err != nil {
		return nil, err
	}
	c := *base
	applySendFlags(cmd, &c)
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cc, err := codec.NewFromPassphrase(c.Crypto.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	source, err := recordSource(&c)
	if err != nil {
		return nil, err
	}

	b, err := builder.New(cc, source, c.MinRecords, c.MaxRecords)
	if err != nil {
		return nil, err
	}

	s := sender.New(c.Listener.Addr(), c.Listener.DialTimeout, c.Listener.WriteTimeout)
	return runner.New(b, s, c.Interval, logger), nil
}

func applySendFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		c.Listener.Host = sendHost
	}
	if flags.Changed("port") {
		c.Listener.Port = sendPort
	}
	if flags.Changed("interval") {
		c.Interval = sendInterval
	}
	if flags.Changed("min") {
		c.MinRecords = sendMin
	}
	if flags.Changed("max") {
		c.MaxRecords = sendMax
	}
	if flags.Changed("data") {
		c.DataFile = sendDataFile
	}
}

func recordSource(c *config.Config) (builder.Source, error) {
	if sendFake {
		return builder.NewFakeSource(0), nil
	}

	var (
		d   *builder.Dataset
		err error
	)
	if c.DataFile != "" {
		d, err = builder.LoadDataset(c.DataFile)
	} else {
		d, err = builder.DefaultDataset()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	return builder.NewDatasetSource(d, nil), nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
