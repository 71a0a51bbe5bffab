package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vdutts/vault/unlock"
)

var errPinAlreadySet = errors.New("quick unlock is already set up on this device; run `vault unlock` or `vault pin disable`")

var loginNoPin bool

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := setupAsk
		if loginNoPin {
			mode = setupNever
		}
		return runLogin(cmd, mode)
	},
}

// runLogin performs a primary login and then handles the PIN offer.
func runLogin(cmd *cobra.Command, mode setupMode) error {
	a, err := openApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	switch a.ctrl.Start(ctx) {
	case unlock.AwaitingPinEntry:
		return errPinAlreadySet
	case unlock.Unlocked:
		// A live provider session is not a fresh login; start over.
		if err := a.ctrl.SignOut(ctx); err != nil {
			return fmt.Errorf("ending previous session: %w", err)
		}
	}
	p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
	return runFlow(ctx, a.ctrl, p, cmd.OutOrStdout(), flowOptions{allowLogin: true, setup: mode})
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().BoolVar(&loginNoPin, "no-pin", false, "Skip the quick unlock PIN offer")
}
