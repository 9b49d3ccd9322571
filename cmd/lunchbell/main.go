package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "lunchbell",
	Short:         "Lunch notification subscription service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("lunchbell failed")
		os.Exit(1)
	}
}
