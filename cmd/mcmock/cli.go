package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mcplc/internal/config"
	"mcplc/internal/cpumode"
	"mcplc/internal/device"
	"mcplc/internal/ladder"
	"mcplc/internal/ladder/ladtext"
	"mcplc/internal/mc"
	"mcplc/internal/mcclient"
	"mcplc/internal/mcserver"
	"mcplc/internal/metrics"
)

var (
	cfgFile   string
	logger    *zap.Logger
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "mcmock",
	Short: "Mock MELSEC Communication (MC) protocol PLC",
	Long: `A mock PLC speaking the Mitsubishi MELSEC Communication protocol over
TCP (3E/4E frames), running a small ladder-logic scan engine against a
shared device memory, plus a client for driving it from the command line.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = initLogger()
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		if cmd.Name() != "version" && cmd.Name() != "help" && cmd.Name() != "generate" {
			appConfig, err = config.LoadConfig(cfgFile)
			if err != nil {
				appConfig = config.DefaultConfig()
				if cfgFile != "" {
					logger.Warn("failed to load config file, using defaults", zap.Error(err))
				}
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the mock PLC server",
	Long:  "Starts the mock PLC's TCP listener and, if a ladder program is configured, its scan engine.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if host, _ := cmd.Flags().GetString("host"); host != "" {
			appConfig.Server.Host = host
		}
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			appConfig.Server.Port = port
		}
		if series, _ := cmd.Flags().GetString("series"); series != "" {
			appConfig.Server.Series = series
		}
		if scanPeriod, _ := cmd.Flags().GetDuration("scan-period"); scanPeriod > 0 {
			appConfig.Ladder.ScanPeriod = scanPeriod
		}
		if program, _ := cmd.Flags().GetString("program"); program != "" {
			appConfig.Ladder.ProgramFile = program
		}
		if maxConn, _ := cmd.Flags().GetInt("max-connections"); maxConn > 0 {
			appConfig.Server.MaxConnections = maxConn
		}
		if err := appConfig.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		series, err := device.ParseSeries(appConfig.Server.Series)
		if err != nil {
			return err
		}

		mem := device.NewMemory(series)
		mode := cpumode.NewCell()
		engine := ladder.NewEngine(mem, mode, appConfig.Ladder.ScanPeriod, logger)
		dispatcher := &mc.Dispatcher{
			Memory: mem,
			Mode:   mode,
			ResetAll: func() {
				mem.ResetAll()
				engine.Reset()
			},
			OnRun: func() {
				if err := engine.Start(); err != nil {
					logger.Warn("remote RUN could not start engine", zap.Error(err))
				}
			},
			OnStop:  func() { _ = engine.Stop() },
			OnPause: func() { _ = engine.Stop() },
		}

		if appConfig.Ladder.ProgramFile != "" {
			data, err := os.ReadFile(appConfig.Ladder.ProgramFile)
			if err != nil {
				return fmt.Errorf("read ladder program: %w", err)
			}
			prog, err := ladtext.Parse(string(data), appConfig.Ladder.ProgramFile)
			if err != nil {
				return fmt.Errorf("parse ladder program: %w", err)
			}
			if err := engine.Load(prog); err != nil {
				return fmt.Errorf("load ladder program: %w", err)
			}
			if appConfig.Ladder.AutoStart {
				if err := engine.Start(); err != nil {
					return fmt.Errorf("start engine: %w", err)
				}
			}
		}

		family := mc.FamilyForSeries(series)
		addr := fmt.Sprintf("%s:%d", appConfig.Server.Host, appConfig.Server.Port)
		srv := mcserver.NewServer(addr, family, dispatcher,
			mcserver.WithMaxConnections(appConfig.Server.MaxConnections),
			mcserver.WithLogger(logger),
		)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("start server: %w", err)
		}
		logger.Info("mock PLC server started",
			zap.String("addr", srv.Addr().String()),
			zap.String("series", series.String()),
			zap.String("family", family.String()),
		)

		if appConfig.Metrics.Enabled {
			collector := metrics.NewCollector(srv, engine, mode, logger)
			if err := collector.Serve(appConfig.Metrics.Addr); err != nil {
				logger.Warn("failed to start metrics server", zap.Error(err))
			} else {
				logger.Info("metrics server started", zap.String("addr", appConfig.Metrics.Addr))
			}
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))

		shutdownErr := make(chan error, 1)
		go func() {
			_ = engine.Stop()
			shutdownErr <- srv.Stop()
		}()

		select {
		case err := <-shutdownErr:
			if err != nil {
				logger.Error("server shutdown error", zap.Error(err))
				return err
			}
		case <-time.After(appConfig.Server.GracefulTimeout):
			logger.Warn("graceful shutdown timed out")
		}

		logger.Info("mock PLC server stopped")
		return nil
	},
}

var serverConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage server configuration files",
}

var serverConfigValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		fmt.Println("config OK")
		fmt.Printf("  Host: %s\n", cfg.Server.Host)
		fmt.Printf("  Port: %d\n", cfg.Server.Port)
		fmt.Printf("  Series: %s\n", cfg.Server.Series)
		fmt.Printf("  Ladder program: %s\n", cfg.Ladder.ProgramFile)
		return nil
	},
}

var serverConfigGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = "config.json"
		}
		cfg := config.DefaultConfig()
		if err := cfg.SaveConfig(output); err != nil {
			return fmt.Errorf("generate config: %w", err)
		}
		fmt.Printf("wrote default config to %s\n", output)
		return nil
	},
}

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Drive a mock PLC's MC protocol from the command line",
}

func buildClient(cmd *cobra.Command) (*mcclient.Client, error) {
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	seriesStr, _ := cmd.Flags().GetString("series")
	series, err := device.ParseSeries(seriesStr)
	if err != nil {
		return nil, err
	}
	c := mcclient.NewClient(host, port, series)
	if err := c.Connect(); err != nil {
		return nil, fmt.Errorf("connect to %s:%d: %w", host, port, err)
	}
	return c, nil
}

var clientReadWordCmd = &cobra.Command{
	Use:   "read-word DEVICE",
	Short: "Read one word device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildClient(cmd)
		if err != nil {
			return err
		}
		defer c.Disconnect()
		class, head, err := ladtext.ParseDeviceRef(args[0])
		if err != nil {
			return err
		}
		v, err := c.ReadWord(class, head)
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	},
}

var clientWriteWordCmd = &cobra.Command{
	Use:   "write-word DEVICE VALUE",
	Short: "Write one word device",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildClient(cmd)
		if err != nil {
			return err
		}
		defer c.Disconnect()
		class, head, err := ladtext.ParseDeviceRef(args[0])
		if err != nil {
			return err
		}
		v, err := strconv.ParseUint(args[1], 10, 16)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", args[1], err)
		}
		return c.WriteWord(class, head, uint16(v))
	},
}

var clientReadBitCmd = &cobra.Command{
	Use:   "read-bit DEVICE",
	Short: "Read one bit device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildClient(cmd)
		if err != nil {
			return err
		}
		defer c.Disconnect()
		class, head, err := ladtext.ParseDeviceRef(args[0])
		if err != nil {
			return err
		}
		v, err := c.ReadBit(class, head)
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	},
}

var clientWriteBitCmd = &cobra.Command{
	Use:   "write-bit DEVICE VALUE",
	Short: "Write one bit device (true|false)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildClient(cmd)
		if err != nil {
			return err
		}
		defer c.Disconnect()
		class, head, err := ladtext.ParseDeviceRef(args[0])
		if err != nil {
			return err
		}
		v, err := strconv.ParseBool(args[1])
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", args[1], err)
		}
		return c.WriteBit(class, head, v)
	},
}

var clientCPUModelCmd = &cobra.Command{
	Use:   "cpu-model",
	Short: "Read the CPU model name",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildClient(cmd)
		if err != nil {
			return err
		}
		defer c.Disconnect()
		model, err := c.ReadCPUModel()
		if err != nil {
			return err
		}
		fmt.Println(model)
		return nil
	},
}

func remoteCmd(use, short string, action func(*mcclient.Client) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildClient(cmd)
			if err != nil {
				return err
			}
			defer c.Disconnect()
			return action(c)
		},
	}
}

var clientPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check connectivity by reading D0",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildClient(cmd)
		if err != nil {
			return err
		}
		defer c.Disconnect()
		if c.TestConnection() {
			fmt.Println("ok")
			return nil
		}
		return fmt.Errorf("ping failed")
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mcmock version %s\n", Version)
		fmt.Printf("  build: %s\n", BuildTime)
		fmt.Printf("  commit: %s\n", GitCommit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")

	serverCmd.Flags().String("host", "", "listen host")
	serverCmd.Flags().Int("port", 0, "listen port")
	serverCmd.Flags().String("series", "", "PLC series: Q or iQ-R")
	serverCmd.Flags().Duration("scan-period", 0, "ladder engine scan period")
	serverCmd.Flags().String("program", "", "ladder program file to load")
	serverCmd.Flags().Int("max-connections", 0, "maximum concurrent connections")

	serverConfigGenerateCmd.Flags().StringP("output", "o", "config.json", "output file path")
	serverConfigCmd.AddCommand(serverConfigValidateCmd, serverConfigGenerateCmd)
	serverCmd.AddCommand(serverConfigCmd)

	clientCmd.PersistentFlags().String("host", "127.0.0.1", "server host")
	clientCmd.PersistentFlags().Int("port", 5000, "server port")
	clientCmd.PersistentFlags().String("series", "Q", "PLC series: Q or iQ-R")
	clientCmd.AddCommand(
		clientReadWordCmd,
		clientWriteWordCmd,
		clientReadBitCmd,
		clientWriteBitCmd,
		clientCPUModelCmd,
		clientPingCmd,
		remoteCmd("run", "Issue Remote RUN", func(c *mcclient.Client) error { return c.RemoteRun() }),
		remoteCmd("stop", "Issue Remote STOP", func(c *mcclient.Client) error { return c.RemoteStop() }),
		remoteCmd("pause", "Issue Remote PAUSE", func(c *mcclient.Client) error { return c.RemotePause() }),
		remoteCmd("reset", "Issue Remote RESET", func(c *mcclient.Client) error { return c.RemoteReset() }),
	)

	rootCmd.AddCommand(serverCmd, clientCmd, versionCmd)
}

func initLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
