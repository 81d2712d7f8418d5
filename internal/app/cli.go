package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/duskrange/wanderer/internal/identity"
)

// Execute builds the root cobra command and runs it against os.Args. It
// returns a process exit code.
func Execute() int {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		return 1
	}
	return exitCode
}

// exitCode carries the result of whichever subcommand ran, since cobra's
// RunE only reports success/failure, not an arbitrary integer.
var exitCode int

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "wanderer",
		Short: "coordinated multi-identity network traffic emulator",
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newComposeRotationCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var opts RunOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "start a traffic emulation run",
		RunE: func(cmd *cobra.Command, args []string) error {
			exitCode = Run(opts)
			if exitCode != 0 {
				return fmt.Errorf("run exited with code %d", exitCode)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "suppress log output")
	cmd.Flags().BoolVarP(&opts.Debug, "debug", "d", false, "write a debug log to the log directory (logs/ unless a preset sets paths.log_dir)")
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "YAML preset config file (skips interactive prompts)")
	cmd.Flags().StringVar(&opts.SitesPath, "sites", "", "path to a newline-delimited site list")
	return cmd
}

func newComposeRotationCmd() *cobra.Command {
	var adapter, mac, ip, gateway, dns string
	var prefix int
	cmd := &cobra.Command{
		Use:   "compose-rotation",
		Short: "print the command sequence one identity rotation would run, without executing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			commands := identity.ComposeRotation(adapter, mac, ip, prefix, gateway, dns)
			for i, c := range commands {
				fmt.Printf("%d: %s\n", i+1, c.String())
			}
			exitCode = 0
			return nil
		},
	}
	cmd.Flags().StringVar(&adapter, "adapter", "", "adapter name")
	cmd.Flags().StringVar(&mac, "mac", "", "new MAC address")
	cmd.Flags().StringVar(&ip, "ip", "", "new IP address")
	cmd.Flags().IntVar(&prefix, "prefix", 24, "CIDR prefix length")
	cmd.Flags().StringVar(&gateway, "gateway", "", "default gateway")
	cmd.Flags().StringVar(&dns, "dns", "", "DNS server")
	for _, name := range []string{"adapter", "mac", "ip", "gateway", "dns"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
