package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vdutts/vault/pin"
)

var pinStatusOutput string

var pinCmd = &cobra.Command{
	Use:   "pin",
	Short: "Manage the quick unlock PIN",
}

var pinStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether quick unlock is set up",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		return writeStatus(cmd.OutOrStdout(), a.store.Status(), pinStatusOutput)
	},
}

var pinSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Sign in with email and password, then set a PIN",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLogin(cmd, setupAlways)
	},
}

var pinDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Remove the PIN and the cached session from this device",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.store.DisablePin(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Quick unlock disabled")
		return nil
	},
}

func writeStatus(w io.Writer, st pin.Status, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(st); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want yaml or json)", format)
	}
}

func init() {
	rootCmd.AddCommand(pinCmd)
	pinCmd.AddCommand(pinStatusCmd)
	pinCmd.AddCommand(pinSetupCmd)
	pinCmd.AddCommand(pinDisableCmd)
	pinStatusCmd.Flags().StringVarP(&pinStatusOutput, "output", "o", "yaml", "Output format: yaml or json")
}
