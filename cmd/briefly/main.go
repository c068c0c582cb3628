package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/DreamCats/briefly/cmd/briefly/internal"
	"github.com/DreamCats/briefly/internal/config"
	"github.com/DreamCats/briefly/internal/logger"
	"github.com/DreamCats/briefly/internal/pipeline"
	"github.com/DreamCats/briefly/internal/progress"
)

// skipConfig marks commands that run without loading the config file.
const skipConfig = "briefly/skip-config"

type app struct {
	configPath string
	logLevel   string
	logJSON    bool

	cfg      *config.Config
	log      logger.Logger
	closeLog func()
}

// main 启动 briefly 命令行工具；收到中断信号时取消正在运行的子命令。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "briefly",
		Short: "Question answering and field extraction over a folder of PDFs",
		Long: `briefly indexes the PDFs in a folder into a local vector store, then answers
questions or extracts a fixed set of case fields from the indexed text using a
language model.`,
		Version:       internal.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd, args)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.closeLog != nil {
				a.closeLog()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.briefly/config/briefly.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&a.logJSON, "log-json", false, "write logs as JSON")

	root.AddCommand(
		newInitCmd(a),
		newIndexCmd(a),
		newAskCmd(a),
		newExtractCmd(a),
		newStatsCmd(a),
		newEvalCmd(a),
		newMCPCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: .env not loaded: %v\n", err)
	}
	if cmd.Annotations[skipConfig] == "true" {
		a.log = logger.New(&logger.Config{Level: logger.LogLevel(a.logLevel), Output: os.Stderr})
		return nil
	}

	cfg, err := internal.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logJSON {
		cfg.Log.JSON = true
	}
	a.cfg = cfg

	target := cfg.Store.Collection
	if len(args) > 0 && cmd.Name() == "index" {
		target = args[0]
	}
	a.log, a.closeLog = internal.SetupLogging(cmd.Name(), target, cfg.Log.Level, cfg.Log.JSON)
	return nil
}

func (a *app) engine(withProgress bool) (*pipeline.Engine, error) {
	opts := []pipeline.Option{pipeline.WithLogger(a.log)}
	if withProgress {
		opts = append(opts, pipeline.WithProgress(progress.New(progress.DefaultEnabled(), os.Stderr)))
	}
	return pipeline.New(a.cfg, opts...)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
