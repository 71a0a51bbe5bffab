package cmd

import (
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Unlock the vault, routing to PIN entry or primary login",
	Long: `Start routes to PIN entry when quick unlock is set up on this device and
to email/password login otherwise. After a primary login you are offered a PIN.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		a.ctrl.Start(ctx)
		p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
		return runFlow(ctx, a.ctrl, p, cmd.OutOrStdout(), flowOptions{allowLogin: true, setup: setupAsk})
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
