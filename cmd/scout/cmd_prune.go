package main

import (
	"time"

	"github.com/spf13/cobra"
)

// CachePruneResult is cache:prune's line-delimited JSON output.
type CachePruneResult struct {
	Days    int   `json:"days"`
	Removed int64 `json:"removed"`
}

var cachePruneDays int

var cachePruneCmd = &cobra.Command{
	Use:   "cache:prune",
	Short: "Remove HTTP cache entries older than N days",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := requireStore(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()

		removed, err := st.PruneHTTPCache(ctx, time.Duration(cachePruneDays)*24*time.Hour)
		if err != nil {
			return err
		}
		return emitJSON(CachePruneResult{Days: cachePruneDays, Removed: removed})
	},
}

// LogsPruneResult is logs:prune's line-delimited JSON output.
type LogsPruneResult struct {
	Days    int   `json:"days"`
	Removed int64 `json:"removed"`
}

var logsPruneDays int

var logsPruneCmd = &cobra.Command{
	Use:   "logs:prune",
	Short: "Remove audit log rows older than N days",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := requireStore(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()

		removed, err := st.PruneAuditLog(ctx, time.Duration(logsPruneDays)*24*time.Hour)
		if err != nil {
			return err
		}
		return emitJSON(LogsPruneResult{Days: logsPruneDays, Removed: removed})
	},
}

func init() {
	cachePruneCmd.Flags().IntVar(&cachePruneDays, "days", 30, "prune cache entries older than this many days")
	logsPruneCmd.Flags().IntVar(&logsPruneDays, "days", 90, "prune audit rows older than this many days")
}
