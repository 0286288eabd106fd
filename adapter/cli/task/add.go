package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/qzwhatnext/qzwhatnext/adapter/cli"
	"github.com/qzwhatnext/qzwhatnext/internal/tasks/application/commands"
	"github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
)

var (
	addNotes    string
	addCategory string
	addEnergy   string
	addDuration int
	addDeadline string
	addStart    string
	addDue      string
	addRisk     float64
	addImpact   float64
	addDepends  []string
	addExclude  bool
)

var addCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Add a task with explicit attributes",
	Long: `Add a task with a title and optional attributes.

Examples:
  qzwhatnext task add "Write quarterly review" --category work --duration 60
  qzwhatnext task add "Book flu shot" --due 2026-09-15
  qzwhatnext task add ".pick up prescription"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		userID, err := app.RequireUser()
		if err != nil {
			return err
		}

		create := commands.CreateTaskCommand{
			UserID:            userID,
			Title:             args[0],
			Notes:             addNotes,
			EstimatedDuration: addDuration,
			Category:          domain.ParseCategory(addCategory),
			AIExcluded:        addExclude,
		}
		if addEnergy != "" {
			create.Energy = domain.ParseEnergy(addEnergy)
		}
		if addDeadline != "" {
			deadline, err := time.Parse(time.RFC3339, addDeadline)
			if err != nil {
				return fmt.Errorf("invalid deadline (use RFC3339, e.g. 2026-09-15T17:00:00Z): %w", err)
			}
			create.Deadline = &deadline
		}
		if addStart != "" {
			d, err := domain.ParseLocalDate(addStart)
			if err != nil {
				return fmt.Errorf("invalid start-after date (use YYYY-MM-DD): %w", err)
			}
			create.StartAfter = &d
		}
		if addDue != "" {
			d, err := domain.ParseLocalDate(addDue)
			if err != nil {
				return fmt.Errorf("invalid due date (use YYYY-MM-DD): %w", err)
			}
			create.DueBy = &d
		}
		if cmd.Flags().Changed("risk") {
			create.RiskScore = &addRisk
		}
		if cmd.Flags().Changed("impact") {
			create.ImpactScore = &addImpact
		}
		for _, dep := range addDepends {
			id, err := uuid.Parse(strings.TrimSpace(dep))
			if err != nil {
				return fmt.Errorf("invalid dependency id %q: %w", dep, err)
			}
			create.Dependencies = append(create.Dependencies, id)
		}

		created, err := app.TaskHandler.Create(cmd.Context(), create)
		if err != nil {
			return fmt.Errorf("failed to add task: %w", err)
		}

		fmt.Printf("Task added: %s\n", created.ID())
		fmt.Printf("  title: %s\n", created.Title())
		if domain.IsAIExcluded(created) {
			fmt.Println("  ai: excluded")
		}
		return nil
	},
}

func init() {
	addCmd.Flags().StringVar(&addNotes, "notes", "", "free-form notes")
	addCmd.Flags().StringVar(&addCategory, "category", "", "category (work, home, admin, ...)")
	addCmd.Flags().StringVar(&addEnergy, "energy", "", "energy intensity (low, medium, high)")
	addCmd.Flags().IntVarP(&addDuration, "duration", "d", 0, "estimated duration in minutes")
	addCmd.Flags().StringVar(&addDeadline, "deadline", "", "hard deadline (RFC3339)")
	addCmd.Flags().StringVar(&addStart, "start-after", "", "earliest scheduling day (YYYY-MM-DD)")
	addCmd.Flags().StringVar(&addDue, "due", "", "soft due day (YYYY-MM-DD)")
	addCmd.Flags().Float64Var(&addRisk, "risk", 0, "risk score in [0,1]")
	addCmd.Flags().Float64Var(&addImpact, "impact", 0, "impact score in [0,1]")
	addCmd.Flags().StringSliceVar(&addDepends, "depends", nil, "dependency task ids")
	addCmd.Flags().BoolVar(&addExclude, "exclude", false, "withhold this task from attribute inference")
}
