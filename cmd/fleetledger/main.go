package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"fleetledger/agent"
	"fleetledger/autoscaler"
	"fleetledger/central/config"
	"fleetledger/central/notifier"
	"fleetledger/central/server"
	"fleetledger/central/storage"
	"fleetledger/ledger"
)

func main() {
	klog.InitFlags(nil)

	root := &cobra.Command{
		Use:           "fleetledger",
		Short:         "Append-only audit ledger for fleet telemetry and autoscaling actions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	root.AddCommand(serveCmd(), agentCmd(), autoscaleCmd())

	if err := root.Execute(); err != nil {
		klog.Errorf("%v", err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// parseListen splits a --listen host:port override.
func parseListen(listen string) (string, int, error) {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "", 0, fmt.Errorf("parse --listen %q: %w", listen, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return "", 0, fmt.Errorf("parse --listen port %q: %w", port, err)
	}
	return host, p, nil
}

func serveCmd() *cobra.Command {
	var configFile, listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ledger server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if listen != "" {
				host, port, err := parseListen(listen)
				if err != nil {
					return err
				}
				cfg.Server.HTTP.Addr = host
				cfg.Server.HTTP.Port = port
			}

			ctx, cancel := signalContext()
			defer cancel()

			led := ledger.New(cfg.AdminIdentity)
			for _, identity := range cfg.AuthorizedLoggers {
				if err := led.GrantLogger(cfg.AdminIdentity, identity); err != nil {
					return err
				}
				klog.Infof("Granted logger %q from config", identity)
			}

			led.Subscribe(notifier.NewLog())

			if cfg.Telegram.Enabled {
				tg, err := notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatIDs)
				if err != nil {
					// The ledger must not depend on a chat service.
					klog.Errorf("Telegram init failed, notifications disabled: %v", err)
				} else {
					led.Subscribe(tg)
				}
			}

			if cfg.Mongo.Enabled {
				archive, err := storage.Open(ctx, cfg, led)
				if err != nil {
					return err
				}
				defer archive.Close(context.Background())
				led.Subscribe(archive)
			}

			return server.New(cfg, led).Run(ctx)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "config.yaml", "Path to server config file")
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address override (host:port)")
	return cmd
}

func agentCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run the telemetry bridge agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := agent.LoadConfig(configFile)
			if err != nil {
				return err
			}
			a, err := agent.New(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()
			return a.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "agent.yaml", "Path to agent config file")
	return cmd
}

func autoscaleCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "autoscale",
		Short: "Run the autoscaling decision loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := autoscaler.LoadConfig(configFile)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			var exec autoscaler.Executor
			if cfg.AWS.Enabled {
				e, err := autoscaler.NewEKSExecutor(ctx, cfg.AWS)
				if err != nil {
					return err
				}
				exec = e
			}

			return autoscaler.New(cfg, exec).Run(ctx)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "autoscaler.yaml", "Path to autoscaler config file")
	return cmd
}
