package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"dctwin/internal/codec"
	"dctwin/internal/core/anomaly"
	"dctwin/internal/domain"
)

func newCapacityCmd(opts *globalOptions) *cobra.Command {
	var phase string

	cmd := &cobra.Command{
		Use:     "capacity <site-id>",
		Short:   "Find the best contiguous rack block for AI workloads",
		Args:    cobra.ExactArgs(1),
		GroupID: "analysis",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := domain.ParsePhase(phase)
			if err != nil {
				return err
			}

			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			block, err := a.Capacity.FindAIReadyCapacity(cmd.Context(), args[0], p)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.jsonOutput {
				return outputJSON(w, block)
			}
			printSection(w, fmt.Sprintf("AI-ready capacity in %s (%s)", args[0], p))
			if block == nil {
				printEmptyState(w, "No rack block meets the power headroom threshold")
				return nil
			}
			printLabelValue(w, "Room", block.RoomID)
			printLabelValue(w, "Racks", strings.Join(block.RackIDs, ", "))
			printLabelValue(w, "Free U", strconv.Itoa(block.TotalFreeU))
			printLabelValue(w, "Headroom", fmt.Sprintf("%.1f kW (avg %.1f kW)", block.TotalPowerHeadroomKw, block.AvgHeadroomKw))
			printLabelValue(w, "Score", fmt.Sprintf("%.1f", block.Score))
			return nil
		},
	}
	cmd.Flags().StringVar(&phase, "phase", string(domain.PhaseAsIs), "Phase to search: AS_IS, TO_BE or FUTURE")
	return cmd
}

func newAnomaliesCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "anomalies",
		Short:   "Reconcile verification scans and triage anomalies",
		GroupID: "analysis",
	}
	cmd.AddCommand(
		newAnomaliesDetectCmd(opts),
		newAnomaliesListCmd(opts),
		newAnomaliesExportCmd(opts),
	)
	return cmd
}

func newAnomaliesDetectCmd(opts *globalOptions) *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "detect <site-id> <scan-file>",
		Short: "Compare a verification scan against the canonical inventory",
		Long: `Classify every difference between a scan and the site's inventory.
With --save the anomalies are persisted, keyed by the scan content so
re-running the same file saves nothing new.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			siteID, path := args[0], args[1]
			parser, err := codec.ForFormat(filepath.Ext(path))
			if err != nil {
				return err
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			records, err := parser.ParseScan(bytes.NewReader(content))
			if err != nil {
				return err
			}

			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			w := cmd.OutOrStdout()
			if save {
				result, err := a.Anomalies.DetectAndSave(cmd.Context(), siteID, records, anomaly.ContentKey(content))
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return outputJSON(w, result)
				}
				printAnomalies(w, result.Anomalies)
				printSuccess(w, fmt.Sprintf("Saved %d of %d anomalies", result.Saved, result.Detected))
				return nil
			}

			found, err := a.Anomalies.Detect(cmd.Context(), siteID, records)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return outputJSON(w, found)
			}
			printAnomalies(w, found)
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "Persist the detected anomalies")
	return cmd
}

func newAnomaliesListCmd(opts *globalOptions) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list <site-id>",
		Short: "List saved anomalies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.Anomalies.List(cmd.Context(), args[0], domain.AnomalyStatus(status))
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return outputJSON(cmd.OutOrStdout(), list)
			}
			printAnomalies(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only anomalies in this status")
	return cmd
}

func newAnomaliesExportCmd(opts *globalOptions) *cobra.Command {
	var (
		status string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export <site-id>",
		Short: "Export anomalies to an Excel workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = args[0] + "-anomalies.xlsx"
			}

			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			data, err := a.Anomalies.Export(cmd.Context(), args[0], domain.AnomalyStatus(status))
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0644); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), fmt.Sprintf("Wrote %s", output))
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only anomalies in this status")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Workbook path (default: <site-id>-anomalies.xlsx)")
	return cmd
}

func printAnomalies(w io.Writer, list []domain.Anomaly) {
	printSection(w, "Anomalies")
	if len(list) == 0 {
		printEmptyState(w, "Inventory matches the scan")
		return
	}
	for _, an := range list {
		_, _ = severityColor(an.Severity).Fprintf(w, "  %-9s", an.Severity)
		fmt.Fprintf(w, " %-20s %s\n", an.Type, an.Notes)
	}
}
