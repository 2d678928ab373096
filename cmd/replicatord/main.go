// Command replicatord runs one node of a synchronous multi-master
// replication cluster: it loads a node's configuration, joins the group
// via groupcomm/GCS, and serves the optional monitor and notify side
// channels until signalled to stop.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	spfcbr "github.com/spf13/cobra"

	libcbr "github.com/nabbar/wsrepl/cobra"
	"github.com/nabbar/wsrepl/config"
	"github.com/nabbar/wsrepl/monitor"
	"github.com/nabbar/wsrepl/notify"
	"github.com/nabbar/wsrepl/replicator"

	liblog "github.com/nabbar/wsrepl/logger"
	libvpr "github.com/nabbar/wsrepl/viper"
	libver "github.com/nabbar/wsrepl/version"

	spfvpr "github.com/spf13/viper"
)

const packageName = "replicatord"

var (
	buildVersion = "dev"
	buildDate    = "1970-01-01"
	buildHash    = "none"
)

var cfgFile string

func appVersion() libver.Version {
	return libver.NewVersion(
		libver.License_MIT,
		packageName,
		"synchronous multi-master replication daemon",
		buildDate,
		buildHash,
		buildVersion,
		"nabbar",
		"",
		packageName,
		1,
	)
}

func main() {
	app := libcbr.New()
	app.SetVersion(appVersion())
	app.Init()

	if err := app.SetFlagConfig(true, &cfgFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	app.AddCommandCompletion()
	app.AddCommandConfigure("configure", packageName, defaultConfigReader)
	app.AddCommandPrintErrorCode(func(item, value string) {
		fmt.Printf("%-8s %s\n", item, value)
	})

	app.AddCommand(runCommand())
	app.AddCommand(statusCommand())
	app.AddCommand(watchCommand())

	if err := app.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

func defaultConfigReader() io.Reader {
	raw, _ := json.MarshalIndent(config.Default(), "", "  ")
	return strings.NewReader(string(raw))
}

func loadConfig() (config.Config, error) {
	vpr := libvpr.New(spfvpr.New())

	if cfgFile == "" {
		return config.Config{}, ErrorNoConfigFile
	}

	vpr.Viper().SetConfigFile(cfgFile)

	if err := vpr.ReadInConfig(); err != nil {
		return config.Config{}, err
	}

	return config.Load(vpr)
}

// ErrorNoConfigFile is returned by the run command when invoked without
// --config.
var ErrorNoConfigFile = fmt.Errorf("no configuration file given, use --config")

func runCommand() *spfcbr.Command {
	return &spfcbr.Command{
		Use:     "run",
		Short:   "Run this node and join the replication cluster",
		Example: "run --config node1.yaml",
		RunE: func(cmd *spfcbr.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			log, err := liblog.NewFrom(ctx, &cfg.Logger)
			if err != nil {
				return err
			}

			node, err := replicator.NewNode(cfg.Repl, cfg.GroupComm, cfg.GCS, cfg.GCache, cfg.Cert, log)
			if err != nil {
				return err
			}

			if err = node.Connect(ctx); err != nil {
				return err
			}
			defer func() { _ = node.Close() }()

			var mon *monitor.Monitor
			if cfg.Monitor.Enabled {
				// Donor-side SST snapshots are produced by the embedding
				// database integration, not by this generic daemon; nil
				// disables the manifest endpoint until one is wired in.
				var snap replicator.SnapshotFunc

				mon, err = monitor.New(cfg.Monitor, cfg.Repl.SST.ManifestPath, node, snap, func() liblog.Logger { return log })
				if err != nil {
					return err
				}

				if err = mon.Start(ctx); err != nil {
					return err
				}
				defer func() { _ = mon.Stop(ctx) }()
			}

			var sub *notify.Subscriber
			if cfg.Notify.Enabled {
				sub, err = notify.Connect(cfg.Notify)
				if err != nil {
					return err
				}
				defer func() { _ = sub.Close() }()
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

			select {
			case <-sig:
			case <-ctx.Done():
			}

			return nil
		},
	}
}

func statusCommand() *spfcbr.Command {
	var addr string

	cmd := &spfcbr.Command{
		Use:     "status",
		Short:   "Fetch the /status endpoint of a running node's monitor server",
		Example: "status --addr http://127.0.0.1:8080",
		RunE: func(cmd *spfcbr.Command, args []string) error {
			if addr == "" {
				return fmt.Errorf("--addr is required")
			}

			client := &http.Client{Timeout: 5 * time.Second}

			resp, err := client.Get(strings.TrimRight(addr, "/") + monitor.PathStatus)
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()

			var out map[string]interface{}
			if err = json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "base URL of the node's monitor server")
	return cmd
}

func watchCommand() *spfcbr.Command {
	var natsURL, subject string

	cmd := &spfcbr.Command{
		Use:     "watch",
		Short:   "Print replication events published on the notify side-channel",
		Example: "watch --nats nats://127.0.0.1:4222",
		RunE: func(cmd *spfcbr.Command, args []string) error {
			if natsURL == "" {
				return fmt.Errorf("--nats is required")
			}

			sub, err := notify.Connect(config.NotifyConfig{
				Enabled: true,
				NatsURL: natsURL,
				Subject: subject,
			})
			if err != nil {
				return err
			}
			defer func() { _ = sub.Close() }()

			sub.OnEvent(func(ev notify.Event) {
				fmt.Printf("%s %-8s node=%s state=%s seqno=%d %s\n",
					ev.Timestamp.Format(time.RFC3339), ev.Type, ev.Node, ev.State, ev.Seqno, ev.Detail)
			})

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			return nil
		},
	}

	cmd.Flags().StringVar(&natsURL, "nats", "", "NATS broker URL to subscribe on")
	cmd.Flags().StringVar(&subject, "subject", "", "event subject (defaults to repl.events)")
	return cmd
}
