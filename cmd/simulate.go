package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agrilink/fleetcore/config"
	"github.com/agrilink/fleetcore/infra/mqtt"
)

var (
	simUnits    int
	simInterval time.Duration
	simSeed     int64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Publish synthetic truck telemetry to the MQTT broker",
	RunE:  runSimulate,
}

func init() {
	simulateCmd.Flags().IntVar(&simUnits, "units", 5, "number of simulated trucks")
	simulateCmd.Flags().DurationVar(&simInterval, "interval", 2*time.Second, "delay between telemetry rounds")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", time.Now().UnixNano(), "random seed")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	sim, err := mqtt.NewSimulator(cfg.MQTT, simUnits, simInterval, simSeed)
	if err != nil {
		return fmt.Errorf("simulator: %w", err)
	}
	sim.Run(ctx)
	return nil
}
