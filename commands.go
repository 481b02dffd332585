package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roisanwr/Water-Potability-Clasification/config"
	"github.com/roisanwr/Water-Potability-Clasification/logging"
	"github.com/roisanwr/Water-Potability-Clasification/ml"
)

// errReported marks failures that were already written to the log.
var errReported = errors.New("reported")

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "waterquality",
		Short: "Serve the drinking water potability checker",
		Long: `Loads the fitted KNN model and feature scaler, then serves an HTML form
that classifies nine water measurements as potable or not potable.

Both artifact files must exist before the server starts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file (optional)")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Verify that the model and scaler artifacts load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, configPath)
		},
	}
	rootCmd.AddCommand(checkCmd)
	return rootCmd
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer logger.Sync()

	application, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return fmt.Errorf("%w: %w", errReported, err)
	}
	defer application.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.run(ctx); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return fmt.Errorf("%w: %w", errReported, err)
	}
	logger.Info("exiting")
	return nil
}

func runCheck(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	artifacts, err := ml.LoadArtifacts(cfg.ML.ModelType, cfg.ML.ModelPath, cfg.ML.ScalerPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "model type:    %s\n", artifacts.ModelType())
	fmt.Fprintf(out, "model file:    %s\n", cfg.ML.ModelPath)
	fmt.Fprintf(out, "scaler file:   %s\n", cfg.ML.ScalerPath)
	fmt.Fprintf(out, "feature order: %s\n", strings.Join(ml.FeatureNames(), ", "))
	return nil
}
