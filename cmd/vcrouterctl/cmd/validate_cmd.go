package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/vcrouter/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate [config.yaml]",
	Short: "Load and validate a vcrouter network configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := config.Load(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("router %d: %s algorithm, %d vnets x %d VCs, buffer depth %d\n",
			cfg.RouterID, cfg.Algorithm, cfg.NumVnets, cfg.VCsPerVnet, cfg.BufferDepth)
		if cfg.EscapeVCEnabled {
			fmt.Println("escape VC: enabled (VC offset 0 of every vnet)")
		}
		if cfg.SpinSchemeEnabled {
			fmt.Printf("SPIN deadlock recovery: enabled (dd_threshold=%d, max_turn_capacity=%d)\n",
				cfg.DDThreshold, cfg.SpinMaxTurnCapacity)
		}
		fmt.Println("OK")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
