package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vdutts/vault/unlock"
)

var errNoQuickUnlock = errors.New("quick unlock is not set up on this device; run `vault login`")

var unlockPrintToken bool

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Unlock the vault with the device PIN",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if a.ctrl.Start(ctx) != unlock.AwaitingPinEntry {
			return errNoQuickUnlock
		}
		// Progress goes to stderr so that --print-token output stays clean.
		p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
		if err := runFlow(ctx, a.ctrl, p, cmd.ErrOrStderr(), flowOptions{allowLogin: false}); err != nil {
			return err
		}
		if !unlockPrintToken {
			return nil
		}
		sess, ok := a.ctrl.Session()
		if !ok {
			return errNoQuickUnlock
		}
		token, err := sess.Token()
		if err != nil {
			return err
		}
		defer sess.Close()
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(unlockCmd)
	unlockCmd.Flags().BoolVar(&unlockPrintToken, "print-token", false, "Print the released session token to stdout")
}
