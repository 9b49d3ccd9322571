package main

import (
	"context"
	"fmt"
	"lunchbell/internal/api"
	"lunchbell/internal/backends"
	"lunchbell/internal/dispatch"
	"lunchbell/internal/flow"
	"lunchbell/internal/menu"
	"lunchbell/internal/metrics"
	"lunchbell/internal/pub"
	"lunchbell/internal/readiness"
	"lunchbell/internal/registry"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service and the menu refresh schedule",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	loc, _ := cfg.Location()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg)

	// Stores
	store, closeStore, err := backends.SnapshotStoreFromConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init snapshot store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.WithError(err).Warn("failed to close snapshot store")
		}
	}()

	// Channels
	snsClient, err := newSNSClient(ctx, cfg)
	if err != nil {
		return err
	}
	snsPub := pub.NewSNS(snsClient, cfg.SMSTopicArn, cfg.PushPlatformArn)
	notifiers, err := buildNotifiers(cfg, snsPub)
	if err != nil {
		return err
	}

	regOpts := []registry.Option{registry.WithMetrics(m)}
	if cfg.KeepEmpty {
		regOpts = append(regOpts, registry.WithKeepEmpty())
	}
	reg := registry.New(store, snsPub, regOpts...)
	reg.Load(ctx)

	disp := dispatch.New(reg, notifiers,
		dispatch.WithWorkers(cfg.DispatchWorkers),
		dispatch.WithSendTimeout(cfg.SendTimeout),
		dispatch.WithMetrics(m),
	)

	// Readiness: the first refresh must settle (or time out) before we serve.
	gate := readiness.NewGate(
		menu.NewHTTPProvider(cfg.MenuURL, cfg.MenuExpr, cfg.MenuTimeout),
		readiness.WithFetchTimeout(cfg.MenuTimeout),
		readiness.WithMetrics(m),
	)
	go func() {
		_ = gate.Refresh(ctx)
	}()
	waitCtx, cancelWait := context.WithTimeout(ctx, cfg.StartupTimeout)
	if err := gate.WaitSettled(waitCtx); err != nil {
		log.WithError(err).Warn("first menu refresh did not settle in time, serving without menu")
	}
	cancelWait()
	log.WithField("menu_state", gate.State()).Info("readiness gate settled")

	sched, err := readiness.NewSchedule(gate, cfg.RefreshSchedule, loc)
	if err != nil {
		return fmt.Errorf("invalid refresh schedule: %w", err)
	}
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()
	log.WithField("next", sched.Next()).Info("menu refresh scheduled")

	svc := flow.NewService(reg, disp, gate, flow.WithLunchMessage(cfg.LunchMessage))
	h := api.NewHandler(svc, promReg)
	stopCh, done := api.RunServerInterruptible(cfg.Port, h.Router())

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		close(stopCh)
		err = <-done
	case err = <-done:
	}

	disp.Wait()
	reg.Flush()
	return err
}
