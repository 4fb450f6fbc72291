package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/user/hsafe/internal/daemon"
	"github.com/user/hsafe/internal/util"
	"github.com/user/hsafe/internal/web"
)

const statusRefresh = 10 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local REST API",
	Long: `Serve the rule list, topology editor and local simulator over HTTP.

Endpoints live under /api: rules, topology, simulate/topology and
report/summary. Stop the server with Ctrl+C or "hsafe stop".

Examples:
  hsafe serve
  hsafe serve --port 9090`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "API port")
	viper.BindPFlag("api_port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	if running, pid := daemon.CheckRunning(cfg.DataDir); running {
		fmt.Printf("Server is already running (PID %d)\n", pid)
		return nil
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := daemon.Acquire(cfg.DataDir); err != nil {
		return err
	}
	defer daemon.Release(cfg.DataDir)

	started := time.Now()
	writeStatus := func() {
		sf := daemon.StatusFile{
			PID:       os.Getpid(),
			Port:      cfg.APIPort,
			StartTime: started.Format(time.RFC3339),
			Rules:     s.rules.Len(),
			Nodes:     len(s.topo.Nodes()),
		}
		if err := daemon.WriteStatusFile(cfg.DataDir, sf); err != nil {
			util.Warn("Failed to write status file: %v", err)
		}
	}
	writeStatus()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	srv := web.NewServer(cfg, s.rules, s.topo)
	g.Go(func() error {
		defer cancel()
		return srv.Run(gctx)
	})

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		ticker := time.NewTicker(statusRefresh)
		defer ticker.Stop()

		for {
			select {
			case sig := <-sigCh:
				util.Info("Received signal %v, shutting down", sig)
				cancel()
				return nil
			case <-ticker.C:
				writeStatus()
			case <-gctx.Done():
				return nil
			}
		}
	})

	fmt.Printf("API listening on http://localhost:%d/api\n", cfg.APIPort)
	fmt.Println("Press Ctrl+C to stop")

	return g.Wait()
}
