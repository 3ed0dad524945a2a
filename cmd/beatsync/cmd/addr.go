package cmd

import (
	"fmt"

	"github.com/rhythmnet/beatsync"
	"github.com/spf13/cobra"
)

var addrCmd = &cobra.Command{
	Use:   "addr <path>...",
	Short: "Print content addresses",
	Long:  "Print the content address for each logical remote path, as used for cache directories and signals.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAddr,
}

func init() {
	rootCmd.AddCommand(addrCmd)
}

func runAddr(cmd *cobra.Command, args []string) error {
	for _, path := range args {
		fmt.Printf("%s\t%s\n", beatsync.Address(path), path)
	}
	return nil
}
