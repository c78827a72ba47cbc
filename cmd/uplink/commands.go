package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Pablu23/Uplink/internal/client"
	"github.com/Pablu23/Uplink/internal/config"
	"github.com/Pablu23/Uplink/internal/server"
)

func newRootCommand() *cobra.Command {
	v := config.New()
	var configPath string

	root := &cobra.Command{
		Use:           "uplink",
		Short:         "Upload files to a shared directory over TCP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	_ = v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	load := func() (*config.Config, error) {
		cfg, err := config.Load(v, configPath)
		if err != nil {
			return nil, err
		}
		log.SetLevel(cfg.Level())
		return cfg, nil
	}

	root.AddCommand(newServerCommand(v, load), newClientCommand(v, load))
	return root
}

func newServerCommand(v *viper.Viper, load func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Accept uploads and listings from clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg.Server)
		},
	}

	flags := cmd.Flags()
	flags.String("address", "0.0.0.0:23456", "address to listen on")
	flags.String("datapath", "./ServerFiles", "directory holding the shared files")
	flags.String("journal", "", "sqlite transfer journal, disabled when empty")
	flags.Duration("idle-timeout", 0, "drop clients that send nothing for this long, 0 disables")
	_ = v.BindPFlag("server.address", flags.Lookup("address"))
	_ = v.BindPFlag("server.datapath", flags.Lookup("datapath"))
	_ = v.BindPFlag("server.journal_path", flags.Lookup("journal"))
	_ = v.BindPFlag("server.idle_timeout", flags.Lookup("idle-timeout"))

	return cmd
}

func runServer(ctx context.Context, cfg config.ServerConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(func(o *server.Options) {
		o.Address = cfg.Address
		o.Datapath = cfg.Datapath
		o.JournalPath = cfg.JournalPath
		o.IdleTimeout = cfg.IdleTimeout
	})
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- srv.Serve()
	}()

	select {
	case err := <-done:
		if cerr := srv.Close(); err == nil {
			err = cerr
		}
		return err
	case <-ctx.Done():
		if err := srv.Close(); err != nil {
			return err
		}
		return <-done
	}
}

func newClientCommand(v *viper.Viper, load func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client <host> <port> [put <file>]",
		Short: "Connect to a server, interactively or to upload a single file",
		Args:  clientArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			var file string
			if len(args) == 4 {
				file = args[3]
			}
			return runClient(cmd.Context(), cfg.Client, net.JoinHostPort(args[0], args[1]), file,
				cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.String("report-dir", "LogFiles", "write a connection report into this directory, empty disables reports")
	flags.Bool("progress", false, "show an upload progress bar")
	_ = v.BindPFlag("client.report_dir", flags.Lookup("report-dir"))
	_ = v.BindPFlag("client.progress", flags.Lookup("progress"))

	return cmd
}

// clientArgs accepts <host> <port> and <host> <port> put <file>.
func clientArgs(cmd *cobra.Command, args []string) error {
	switch len(args) {
	case 2:
		return nil
	case 4:
		if strings.ToLower(args[2]) != "put" {
			return fmt.Errorf("unknown command %q, expected put", args[2])
		}
		return nil
	default:
		return fmt.Errorf("expected <host> <port> [put <file>], got %d arguments", len(args))
	}
}

func runClient(ctx context.Context, cfg config.ClientConfig, address string, file string, in io.Reader, out io.Writer, progress io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	session, err := client.Dial(ctx, address, func(o *client.Options) {
		if cfg.Progress {
			o.Progress = progress
		}
	})
	if err != nil {
		return fmt.Errorf("could not connect to %s: %w", address, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.WithError(err).Error("Could not close connection")
		}
	}()

	if file != "" {
		err = client.RunAutomatic(session, file, out)
	} else {
		err = client.RunInteractive(session, in, out)
	}
	_ = session.Close()

	if cfg.ReportDir != "" {
		path, rerr := client.WriteReport(cfg.ReportDir, session.Stats())
		if rerr != nil {
			log.WithError(rerr).Error("Could not write connection report")
		} else {
			log.WithField("Path", path).Info("Connection report written")
		}
	}

	return err
}
