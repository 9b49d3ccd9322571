package main

import (
	"fmt"
	"lunchbell/internal/backends"
	"lunchbell/internal/dispatch"
	"lunchbell/internal/flow"
	"lunchbell/internal/menu"
	"lunchbell/internal/pub"
	"lunchbell/internal/readiness"
	"lunchbell/internal/registry"
	"lunchbell/internal/types"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	dispatchMessage  string
	dispatchWithMenu bool
)

func init() {
	dispatchCmd.Flags().StringVarP(&dispatchMessage, "message", "m", "", "message to send (default LUNCH_MESSAGE)")
	dispatchCmd.Flags().BoolVar(&dispatchWithMenu, "with-menu", true, "fetch today's menu for chat channels first")
	rootCmd.AddCommand(dispatchCmd)
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Send the lunch notification to every stored subscriber and wait for the result",
	RunE:  runDispatch,
}

func runDispatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	store, closeStore, err := backends.SnapshotStoreFromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = closeStore()
	}()

	snsClient, err := newSNSClient(ctx, cfg)
	if err != nil {
		return err
	}
	snsPub := pub.NewSNS(snsClient, cfg.SMSTopicArn, cfg.PushPlatformArn)
	notifiers, err := buildNotifiers(cfg, snsPub)
	if err != nil {
		return err
	}

	reg := registry.New(store, snsPub)
	reg.Load(ctx)

	var extra types.Extra
	if dispatchWithMenu && cfg.MenuURL != "" {
		gate := readiness.NewGate(menu.NewHTTPProvider(cfg.MenuURL, cfg.MenuExpr, cfg.MenuTimeout))
		if err := gate.Refresh(ctx); err != nil {
			log.WithError(err).Warn("dispatching without menu")
		}
		extra.Menu, _ = gate.Menu()
	}

	message := dispatchMessage
	if message == "" {
		message = cfg.LunchMessage
	}
	if message == "" {
		message = flow.DefaultLunchMessage
	}

	report := dispatch.New(reg, notifiers,
		dispatch.WithWorkers(cfg.DispatchWorkers),
		dispatch.WithSendTimeout(cfg.SendTimeout),
	).Dispatch(ctx, message, extra)

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "dispatch %s: %d/%d sends succeeded\n", report.ID, report.Succeeded, report.Attempted)
	for _, f := range report.Failures {
		_, _ = fmt.Fprintf(out, "  %s via %s: %v\n", f.Identity, f.Kind, f.Err)
	}
	return nil
}
