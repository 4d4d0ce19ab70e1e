// Command fakestack serves an in-memory pmctl and port registry on the
// well-known ports so the dashboard can be exercised without the real fleet.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/devports/kdcdash/pkg/fakepm"
	"github.com/devports/kdcdash/pkg/log"
	"github.com/devports/kdcdash/pkg/models"
)

type fleet struct {
	Projects []models.Project    `yaml:"projects"`
	Ports    []models.PortEntry  `yaml:"ports"`
	Stats    *models.SystemStats `yaml:"stats"`
}

var (
	seedPath     string
	lag          int
	registryPort int
	pmctlPort    int
)

var rootCmd = &cobra.Command{
	Use:          "fakestack",
	Short:        "Serve a fake pmctl and port registry",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := log.Init(log.Config{Level: log.LevelInfo}); err != nil {
			return err
		}
		f, err := loadFleet(seedPath)
		if err != nil {
			return err
		}
		srv := fakepm.New(lag)
		for _, p := range f.Projects {
			srv.SeedProject(p.ID, p)
		}
		for _, e := range f.Ports {
			srv.SeedPort(e.Service, e)
		}
		srv.SetStats(f.Stats)
		return serve(cmd.Context(), srv)
	},
}

func init() {
	rootCmd.Flags().StringVar(&seedPath, "seed", "sandbox/fakestack/fleet.yaml", "YAML file with projects, ports and stats")
	rootCmd.Flags().IntVar(&lag, "lag", 2, "project reads before a command takes effect")
	rootCmd.Flags().IntVar(&registryPort, "registry-port", 4444, "port registry listen port")
	rootCmd.Flags().IntVar(&pmctlPort, "pmctl-port", 7777, "pmctl listen port")
}

func loadFleet(path string) (fleet, error) {
	var f fleet
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("failed to read seed file: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	for i, p := range f.Projects {
		if p.ID == "" {
			return f, fmt.Errorf("project %d in %s has no id", i, path)
		}
	}
	return f, nil
}

func serve(ctx context.Context, srv *fakepm.Server) error {
	servers := []*http.Server{
		{Addr: net.JoinHostPort("", strconv.Itoa(pmctlPort)), Handler: srv.PMHandler(), ReadHeaderTimeout: 5 * time.Second},
		{Addr: net.JoinHostPort("", strconv.Itoa(registryPort)), Handler: srv.RegistryHandler(), ReadHeaderTimeout: 5 * time.Second},
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, s := range servers {
		g.Go(func() error {
			log.Info("listening", "addr", s.Addr)
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for _, s := range servers {
			_ = s.Shutdown(shutdownCtx)
		}
		return nil
	})
	return g.Wait()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = log.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
