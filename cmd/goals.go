package cmd

import (
	"fmt"
	"time"

	"github.com/habedi/rebaton/client"
	"github.com/habedi/rebaton/pkg/clierr"
	"github.com/habedi/rebaton/pkg/validation"
	"github.com/spf13/cobra"
)

func goalsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goals",
		Short: "Manage your savings goals",
	}

	cmd.AddCommand(
		listGoalsCmd(c),
		addGoalCmd(c),
		updateGoalCmd(c),
		deleteGoalCmd(c),
	)

	return cmd
}

func listGoalsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show your goals and their progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := c.requireSession(ctx); err != nil {
				return err
			}
			goals, err := c.client.Goals(ctx)
			if err != nil {
				return userError("Failed to fetch goals", err)
			}
			if len(goals) == 0 {
				cmd.Println("You have no goals yet. Use `rebaton goals add` to create one.")
				return nil
			}

			table := newTable(cmd.OutOrStdout(), "Goal ID", "Title", "Saved", "Target", "Progress", "Deadline", "Status")
			for _, g := range goals {
				table.Append([]string{
					g.ID,
					singleLine(g.Title),
					formatMoney(g.CurrentAmount),
					formatMoney(g.TargetAmount),
					formatPercent(g.Progress()),
					formatDate(g.Deadline),
					g.Status,
				})
			}
			table.Render()
			return nil
		},
	}
}

type goalFlags struct {
	title    string
	target   float64
	deadline string
}

func (f *goalFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "Title of the goal")
	cmd.Flags().Float64Var(&f.target, "target", 0, "Amount to save")
	cmd.Flags().StringVar(&f.deadline, "deadline", "", "Deadline in YYYY-MM-DD format")
}

func (f *goalFlags) toInput() (client.GoalInput, error) {
	if err := validation.ValidateNonEmptyString("title", f.title); err != nil {
		return client.GoalInput{}, validationError(err)
	}
	if err := validation.ValidateAmount(f.target); err != nil {
		return client.GoalInput{}, validationError(err)
	}
	in := client.GoalInput{Title: f.title, TargetAmount: f.target}
	if f.deadline != "" {
		d, err := time.Parse("2006-01-02", f.deadline)
		if err != nil {
			return client.GoalInput{}, clierr.New(clierr.Validation, fmt.Sprintf("invalid deadline %q, expected YYYY-MM-DD", f.deadline), err)
		}
		in.Deadline = &d
	}
	return in, nil
}

func addGoalCmd(c *cli) *cobra.Command {
	var flags goalFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a goal",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := flags.toInput()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := c.requireSession(ctx); err != nil {
				return err
			}
			goal, err := c.client.CreateGoal(ctx, in)
			if err != nil {
				return userError("Failed to create goal", err)
			}
			cmd.Printf("Goal %q created with ID %s.\n", goal.Title, goal.ID)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func updateGoalCmd(c *cli) *cobra.Command {
	var flags goalFlags
	cmd := &cobra.Command{
		Use:   "update <goal-id>",
		Short: "Change the title, target or deadline of a goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateID("goal", args[0]); err != nil {
				return validationError(err)
			}
			in, err := flags.toInput()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := c.requireSession(ctx); err != nil {
				return err
			}
			goal, err := c.client.UpdateGoal(ctx, args[0], in)
			if err != nil {
				return userError(fmt.Sprintf("Failed to update goal %s", args[0]), err)
			}
			cmd.Printf("Goal %s updated.\n", goal.ID)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func deleteGoalCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <goal-id>",
		Short: "Delete a goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateID("goal", args[0]); err != nil {
				return validationError(err)
			}
			ctx := cmd.Context()
			if err := c.requireSession(ctx); err != nil {
				return err
			}
			if err := c.client.DeleteGoal(ctx, args[0]); err != nil {
				return userError(fmt.Sprintf("Failed to delete goal %s", args[0]), err)
			}
			cmd.Printf("Goal %s deleted.\n", args[0])
			return nil
		},
	}
}
