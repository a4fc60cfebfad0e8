package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/defistate/clamm-engine-go/scenario"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Replay a scenario against a fresh engine and print the outcome",
		Args:  cobra.ExactArgs(1),
		RunE:  runSimulate,
	}
	cmd.Flags().Bool("json", false, "print the report as JSON")
	return cmd
}

func runSimulate(cmd *cobra.Command, args []string) error {
	_, logger, sync, err := setup(cmd)
	if err != nil {
		return err
	}
	defer sync()

	sc, err := scenario.Load(args[0])
	if err != nil {
		return err
	}
	env, err := scenario.NewEnv(logger.With("component", "manager"), prometheus.NewRegistry(), nil)
	if err != nil {
		return err
	}

	report, runErr := scenario.Run(cmd.Context(), env, sc, logger)
	if report != nil {
		asJSON, _ := cmd.Flags().GetBool("json")
		if err := printReport(cmd.OutOrStdout(), report, asJSON); err != nil {
			return err
		}
	}
	return runErr
}

func printReport(out io.Writer, report *scenario.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	w := tabwriter.NewWriter(out, 0, 0, 4, ' ', 0)
	fmt.Fprintf(w, "STEP\tKIND\tPOOL\tDELTA\tAMOUNT\tCHANGES\tERROR\t\n")
	for _, r := range report.Results {
		step := "init"
		if r.Index >= 0 {
			step = fmt.Sprint(r.Index)
		}
		delta, amount := "-", "-"
		if r.Delta != nil {
			delta = r.Delta.String()
		}
		if r.Amount != nil {
			amount = r.Amount.String()
		}
		changes := fmt.Sprintf("+%d ~%d -%d", len(r.Changes.Additions), len(r.Changes.Updates), len(r.Changes.Deletions))
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n", step, r.Kind, orDash(r.Pool), delta, amount, changes, orDash(r.Err))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "POOL\tTICK\tLIQUIDITY\tSQRT PRICE X96\tTICKS\t\n")
	for _, p := range report.Pools {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t\n", shortID(p.ID.Hex()), p.Slot0.Tick, p.Liquidity, p.Slot0.SqrtPriceX96, len(p.Ticks))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "\ndigest %s\n", report.Digest)
	return err
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shortID(id string) string {
	if len(id) <= 14 {
		return id
	}
	return id[:10] + ".." + id[len(id)-4:]
}
