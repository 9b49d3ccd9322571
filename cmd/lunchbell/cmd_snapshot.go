package main

import (
	"errors"
	"fmt"
	"io"
	"lunchbell/internal/backends"
	"lunchbell/internal/types"
	"os"

	"github.com/goccy/go-yaml"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var snapshotFile string

func init() {
	snapshotCmd.PersistentFlags().StringVarP(&snapshotFile, "file", "f", "", "YAML file (default stdin/stdout)")
	snapshotCmd.AddCommand(snapshotExportCmd, snapshotImportCmd)
	rootCmd.AddCommand(snapshotCmd)
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Export or import the subscriber snapshot as YAML",
}

var snapshotExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the stored snapshot as YAML",
	RunE:  runSnapshotExport,
}

var snapshotImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Replace the stored snapshot with a YAML document",
	RunE:  runSnapshotImport,
}

// snapshotDoc is the YAML layout:
//
//	subscribers:
//	  alice:
//	    sms: arn:aws:sns:...
//	    slack: local
type snapshotDoc struct {
	Subscribers map[string]map[string]string `yaml:"subscribers"`
}

func encodeSnapshotYAML(w io.Writer, snap types.Snapshot) error {
	b, err := yaml.Marshal(snapshotDoc{Subscribers: snap.Raw()})
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func decodeSnapshotYAML(r io.Reader) (types.Snapshot, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var doc snapshotDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse snapshot yaml: %w", err)
	}
	return types.SnapshotFromRaw(doc.Subscribers), nil
}

func runSnapshotExport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)
	store, closeStore, err := backends.SnapshotStoreFromConfig(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = closeStore()
	}()

	snap, err := store.LoadSnapshot(cmd.Context())
	if errors.Is(err, types.ErrNotFound) {
		snap = types.Snapshot{}
	} else if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if snapshotFile != "" {
		f, err := os.Create(snapshotFile)
		if err != nil {
			return err
		}
		defer func() {
			_ = f.Close()
		}()
		out = f
	}
	return encodeSnapshotYAML(out, snap)
}

func runSnapshotImport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	in := cmd.InOrStdin()
	if snapshotFile != "" {
		f, err := os.Open(snapshotFile)
		if err != nil {
			return err
		}
		defer func() {
			_ = f.Close()
		}()
		in = f
	}
	snap, err := decodeSnapshotYAML(in)
	if err != nil {
		return err
	}

	store, closeStore, err := backends.SnapshotStoreFromConfig(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = closeStore()
	}()
	if err := store.SaveSnapshot(cmd.Context(), snap); err != nil {
		return err
	}
	log.WithField("subscribers", len(snap)).Info("snapshot imported")
	return nil
}
