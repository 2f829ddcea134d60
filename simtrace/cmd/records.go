package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/sarchlab/simtrace/datarecording"
	"github.com/spf13/cobra"
)

var recordsCmd = &cobra.Command{
	Use:   "records <database>",
	Short: "List the runs stored in a recording database.",
	Long: "`records <database>` lists the runs written with `run --record`. " +
		"With --run, the signals of one run are listed instead.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reader, err := datarecording.NewReader(args[0])
		if err != nil {
			return err
		}
		defer reader.Close()

		runID, _ := cmd.Flags().GetString("run")
		if runID != "" {
			return listSignals(cmd, reader, runID)
		}

		return listRuns(cmd, reader)
	},
}

func init() {
	recordsCmd.Flags().String("run", "", "list the signals of this run")
	rootCmd.AddCommand(recordsCmd)
}

func listRuns(cmd *cobra.Command, reader *datarecording.Reader) error {
	runs, err := reader.ListRuns()
	if err != nil {
		return err
	}

	p := newPrinter(cmd, cmd.OutOrStdout())
	if len(runs) == 0 {
		p.warn("No run recorded.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tDESTINATION\tSTARTED\tFRAMES\tSTATUS")

	for _, r := range runs {
		status := "closed"
		if !r.Done() {
			status = "interrupted"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.Destination, r.Started.Format(time.RFC3339),
			r.Frames, status)
	}

	return w.Flush()
}

func listSignals(
	cmd *cobra.Command,
	reader *datarecording.Reader,
	runID string,
) error {
	signals, err := reader.Signals(runID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tSIGNAL\tWIDTH")

	for _, s := range signals {
		fmt.Fprintf(w, "%d\t%s\t%d\n", s.Index, s.FullName(), s.Width)
	}

	return w.Flush()
}
