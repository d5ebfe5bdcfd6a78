package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit  int
		offset int
		remove bool
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded runs",
		Long: `List recorded runs, newest first. With a run ID, show that run's steps
and execution log; with --delete, remove it instead. Requires SCHEMAPROV_STORE.`,
		Example: `  # List the last 20 runs
  schemaprov history

  # Show one run
  schemaprov history 0b6f3d0e-3f7c-4c55-9a57-0f1f3a9e2c11

  # Remove one run with its steps and log
  schemaprov history 0b6f3d0e-3f7c-4c55-9a57-0f1f3a9e2c11 --delete`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("run history is disabled: set SCHEMAPROV_STORE")
			}
			defer store.Close()

			if remove {
				if len(args) == 0 {
					return fmt.Errorf("--delete requires a run ID")
				}
				if err := store.DeleteRun(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Printf("Deleted run %s\n", args[0])
				return nil
			}

			if len(args) == 1 {
				run, err := store.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				entries, err := store.GetRunLog(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(map[string]interface{}{"run": run, "log": entries})
				}

				fmt.Printf("Run %s (%s, %s)\n", run.ID, run.Status, run.Trigger)
				fmt.Printf("  Started:   %s\n", run.StartedAt.Format(time.RFC3339))
				fmt.Printf("  Completed: %s\n", run.CompletedAt.Format(time.RFC3339))
				if run.Error != nil {
					fmt.Printf("  Error:     %s\n", *run.Error)
				}

				fmt.Println("\nSteps:")
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "  SEQ\tKIND\tRESOURCE\tSTATUS\tDURATION")
				for _, s := range run.Steps {
					fmt.Fprintf(w, "  %d\t%s\t%s\t%s\t%s\n", s.Seq, s.Kind, s.Resource, s.Status, s.Duration)
				}
				_ = w.Flush()

				fmt.Println("\nLog:")
				for _, e := range entries {
					fmt.Printf("  [%s] %s: %s\n", e.Timestamp.Format(time.RFC3339), e.Level, e.Message)
				}
				return nil
			}

			runs, err := store.ListRuns(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(runs)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tTRIGGER\tCOLLECTIONS\tINDEXES\tSEEDED\tSTARTED")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%t\t%s\n",
					r.ID, r.Status, r.Trigger, r.CollectionsCreated, r.IndexesCreated,
					r.DefaultDataInserted, r.StartedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	cmd.Flags().IntVar(&offset, "offset", 0, "runs to skip")
	cmd.Flags().BoolVar(&remove, "delete", false, "delete the given run")

	return cmd
}
