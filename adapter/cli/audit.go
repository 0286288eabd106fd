package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	auditdomain "github.com/qzwhatnext/qzwhatnext/internal/audit/domain"
)

var (
	auditType    string
	auditTarget  string
	auditRebuild string
	auditSince   time.Duration
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the audit trail",
	Long: `Show why the schedule looks the way it does: every import,
inference, tier change, placement and calendar edit is recorded.

Examples:
  qzwhatnext audit --since 24h
  qzwhatnext audit --type overflow_flagged
  qzwhatnext audit --task 4f1c...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := RequireApp()
		if err != nil {
			return err
		}
		userID, err := app.RequireUser()
		if err != nil {
			return err
		}

		filter := auditdomain.Filter{}
		if auditType != "" {
			eventType := auditdomain.EventType(auditType)
			filter.Type = &eventType
		}
		if auditTarget != "" {
			id, err := uuid.Parse(auditTarget)
			if err != nil {
				return fmt.Errorf("invalid --task id: %w", err)
			}
			filter.TargetID = &id
		}
		if auditRebuild != "" {
			id, err := uuid.Parse(auditRebuild)
			if err != nil {
				return fmt.Errorf("invalid --rebuild id: %w", err)
			}
			filter.RebuildID = &id
		}
		if auditSince > 0 {
			since := time.Now().Add(-auditSince)
			filter.Since = &since
		}

		events, err := app.AuditLog.List(cmd.Context(), userID, filter)
		if err != nil {
			return fmt.Errorf("failed to read audit trail: %w", err)
		}
		if len(events) == 0 {
			fmt.Println("No audit events.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tTYPE\tTARGET\tDETAILS")
		for _, e := range events {
			details, _ := json.Marshal(e.Details)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				e.OccurredAt.Format("2006-01-02 15:04:05"),
				e.Type,
				e.TargetID,
				details,
			)
		}
		return w.Flush()
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditType, "type", "", "filter by event type")
	auditCmd.Flags().StringVar(&auditTarget, "task", "", "filter by target id")
	auditCmd.Flags().StringVar(&auditRebuild, "rebuild", "", "filter by rebuild id")
	auditCmd.Flags().DurationVar(&auditSince, "since", 0, "only events newer than this (e.g. 24h)")
	rootCmd.AddCommand(auditCmd)
}
