package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"dimctl/internal/ipc"
)

func init() {
	rootCmd.AddCommand(rescanCmd)
}

var rescanCmd = &cobra.Command{
	Use:   "rescan",
	Short: "Re-enumerate connected displays",
	Long: `Ask the daemon to re-detect displays, for example after plugging or
unplugging a monitor. New displays come under automatic control;
vanished ones are released.`,
	Args: cobra.NoArgs,
	RunE: runRescan,
}

func runRescan(_ *cobra.Command, _ []string) error {
	if err := ipc.NewClient(socketFlag).Rescan(); err != nil {
		return err
	}
	fmt.Println("rescan complete")

	return nil
}
