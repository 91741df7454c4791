package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dimctl/internal/ipc"
	"dimctl/internal/monitor"
)

var (
	statusJSON  bool
	statusWatch bool
)

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print machine-readable JSON")
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "stay connected and print every state change")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status [MONITOR]",
	Short: "Show the state of connected monitors",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := ipc.NewClient(socketFlag)

	monitorID := ""
	if len(args) > 0 {
		monitorID = args[0]
	}

	statuses, err := client.Status(monitorID)
	if err != nil {
		return err
	}
	if err := printStatuses(statuses); err != nil {
		return err
	}

	if !statusWatch {
		return nil
	}

	return client.Watch(cmd.Context(), func(statuses []monitor.Status) {
		if err := printStatuses(statuses); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	})
}

func printStatuses(statuses []monitor.Status) error {
	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(statuses)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATE\tBRIGHTNESS\tCAPABILITY\tDEGRADED")
	for _, st := range statuses {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\t%v\n",
			st.ID, st.Name, st.State, st.Brightness, st.Capability, st.Degraded)
	}

	return w.Flush()
}
