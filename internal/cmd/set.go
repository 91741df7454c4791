package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"dimctl/internal/ipc"
)

func init() {
	rootCmd.AddCommand(setCmd)
}

var setCmd = &cobra.Command{
	Use:   "set MONITOR PERCENT",
	Short: "Manually override a monitor's brightness",
	Long: `Set a monitor to an explicit brightness. Automatic dimming for that
monitor is suspended until you are active again or the idle timeout
fires anew.`,
	Args: cobra.ExactArgs(2),
	RunE: runSet,
}

func runSet(_ *cobra.Command, args []string) error {
	percent, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("percent must be a number: %w", err)
	}
	if percent < 0 || percent > 100 {
		return fmt.Errorf("percent must be between 0 and 100, got %d", percent)
	}

	return ipc.NewClient(socketFlag).SetBrightness(args[0], percent)
}
