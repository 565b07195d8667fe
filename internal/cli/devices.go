package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/fleet-runner/internal/device"
	"github.com/nerrad567/fleet-runner/internal/pipeline"
	"github.com/nerrad567/fleet-runner/internal/workspace"
)

func (a *app) newDevicesCommand() *cobra.Command {
	var (
		sel    selection
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "devices (-d DIR | -f FILE)",
		Short: "List the device fleet without starting anything",
		Long: `Parses the device records of the tests directory and prints the fleet in
device index order, followed by the records that were rejected.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.devices(cmd.Context(), sel, asJSON, cmd.OutOrStdout())
		},
	}
	sel.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the fleet as JSON")
	return cmd
}

func (a *app) devices(ctx context.Context, sel selection, asJSON bool, out io.Writer) error {
	testsDir, _, err := sel.resolve()
	if err != nil {
		return err
	}
	cfg, err := a.loadConfig(testsDir)
	if err != nil {
		return err
	}
	rc, err := workspace.New(workspace.Options{TestsDir: testsDir, Layout: cfg.Workspace})
	if err != nil {
		return err
	}

	reg, err := device.LoadDir(ctx, rc.DevicesDir, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", pipeline.ErrNoDevices, err)
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reg.Devices()); err != nil {
			return err
		}
	} else {
		writeFleet(out, reg)
	}

	if reg.Count() == 0 {
		return fmt.Errorf("%w in %s", pipeline.ErrNoDevices, rc.DevicesDir)
	}
	return nil
}

func writeFleet(out io.Writer, reg *device.Registry) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tUDID\tNAME\tPORT\tBOOTSTRAP\tRECORD")
	for i, d := range reg.Devices() {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\n", i, d.UDID, d.ReportName(), d.Port, d.BootstrapPort, d.ConfPath)
	}
	tw.Flush() //nolint:errcheck // console output

	for _, rej := range reg.Rejected() {
		fmt.Fprintf(out, "rejected %s: %v\n", rej.Path, rej.Err)
	}
}
