package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hamzawahab/contactsterm/internal/commands"
	"github.com/hamzawahab/contactsterm/internal/config"
	"github.com/hamzawahab/contactsterm/internal/events"
	"github.com/hamzawahab/contactsterm/internal/history"
	"github.com/hamzawahab/contactsterm/internal/logger"
	"github.com/hamzawahab/contactsterm/internal/network"
	"github.com/hamzawahab/contactsterm/internal/session"
	"github.com/hamzawahab/contactsterm/internal/ui"
	"github.com/hamzawahab/contactsterm/internal/version"
)

type options struct {
	home    string
	gateway string
	userID  string
	debug   bool
}

func main() {
	var opts options
	rootCmd := &cobra.Command{
		Use:   "contactsterm",
		Short: "Terminal client for the contacts and messaging gateway",
		Long: `contactsterm signs in to the gateway with a stored session token,
keeps the contacts and messaging websockets open, and shows incoming
requests, messages and files as they arrive.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	rootCmd.Flags().StringVar(&opts.home, "home", "", "config directory (default ~/.contactsterm)")
	rootCmd.Flags().StringVar(&opts.gateway, "gateway", "", "gateway base URL, overrides config")
	rootCmd.Flags().StringVar(&opts.userID, "user", "", "user id, overrides config")
	rootCmd.Flags().BoolVar(&opts.debug, "debug", false, "log every decoded frame")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	var (
		cfg *config.Config
		err error
	)
	if opts.home != "" {
		cfg, err = config.LoadFrom(opts.home)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.gateway != "" {
		cfg.GatewayURL = opts.gateway
	}
	if opts.userID != "" {
		cfg.UserID = opts.userID
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to prepare directories: %w", err)
	}
	log, err := logger.New(cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialise logger: %w", err)
	}
	log.SetDebug(opts.debug)
	hist := history.New(cfg.LogDir)
	eventStream := make(chan events.Event, 128)

	var gw session.Gateway
	client, err := network.NewClient(cfg, log, eventStream)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v; running offline. Sign in with @login (config: %s)\n", err, cfg.ConfigDir())
		log.Warn("offline: %v", err)
	} else {
		gw = client
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := client.Connect(ctx); err != nil {
			log.Error("connect: %v", err)
			eventStream <- events.Notice(events.LevelError, fmt.Sprintf("Could not reach gateway: %v", err))
		}
		cancel()
	}

	sess := session.New(cfg, log, hist, gw, eventStream)
	sess.SetDialer(func(c *config.Config) (session.Gateway, error) {
		client, err := network.NewClient(c, log, eventStream)
		if err != nil {
			return nil, err
		}
		return client, nil
	})
	stopWatcher := sess.StartReconnectWatcher(10 * time.Second)
	handler := commands.New(sess)
	console, err := ui.New(sess, handler)
	if err != nil {
		stopWatcher()
		sess.Close()
		return fmt.Errorf("failed to start console: %w", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Println("\nSignal received, shutting down...")
		stopWatcher()
		sess.Close()
		os.Exit(0)
	}()

	console.Run()
	stopWatcher()
	sess.Close()
	return nil
}
