package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"dctwin/internal/codec"
	"dctwin/internal/core/lifecycle"
	"dctwin/internal/domain"
)

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "migrate",
		Short:   "Create or upgrade the database schema",
		Args:    cobra.NoArgs,
		GroupID: "inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			// opening the store applies the schema
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			printSuccess(cmd.OutOrStdout(), fmt.Sprintf("Schema ready (%s)", a.Store.Dialect()))
			return nil
		},
	}
}

func newSitesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "sites",
		Short:   "List sites",
		Args:    cobra.NoArgs,
		GroupID: "inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			sites, err := a.Inventory.ListSites(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.jsonOutput {
				return outputJSON(w, sites)
			}
			printSection(w, "Sites")
			if len(sites) == 0 {
				printEmptyState(w, "No sites imported")
				return nil
			}
			rows := make([][]string, 0, len(sites))
			for _, s := range sites {
				rows = append(rows, []string{s.ID, s.Name})
			}
			printTable(w, []string{"ID", "Name"}, rows)
			return nil
		},
	}
}

func newImportCmd(opts *globalOptions) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "import <scene-file>",
		Short: "Import a site scene from YAML or JSON",
		Long: `Import a nested site > rooms > racks > devices scene as the site's
initial inventory. The format follows the file extension.`,
		Args:    cobra.ExactArgs(1),
		GroupID: "inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			parser, err := codec.ForFormat(filepath.Ext(path))
			if err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			model, err := parser.ParseScene(f)
			if err != nil {
				return err
			}

			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Inventory.ImportScene(cmd.Context(), model, userID)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.jsonOutput {
				return outputJSON(w, result)
			}
			printSuccess(w, fmt.Sprintf("Imported site %s", result.SiteID))
			printLabelValue(w, "Rooms", strconv.Itoa(result.Rooms))
			printLabelValue(w, "Racks", strconv.Itoa(result.Racks))
			printLabelValue(w, "Devices", strconv.Itoa(result.Devices))
			printLabelValue(w, "Change set", result.ChangeSetID)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User recorded in the import history")
	return cmd
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:     "export <site-id>",
		Short:   "Export a site scene",
		Args:    cobra.ExactArgs(1),
		GroupID: "inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == "" && output != "" {
				format = filepath.Ext(output)
			}
			exporter, err := codec.ForFormat(format)
			if err != nil {
				return err
			}

			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				if err := a.Inventory.ExportScene(cmd.Context(), args[0], exporter, f); err != nil {
					return err
				}
				printSuccess(w, fmt.Sprintf("Wrote %s", output))
				return nil
			}
			return a.Inventory.ExportScene(cmd.Context(), args[0], exporter, w)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "yaml or json (default: from --output extension, else yaml)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}

func newMoveCmd(opts *globalOptions) *cobra.Command {
	var (
		rackID   string
		uPos     int
		phase    string
		moveType string
		userID   string
		notes    string
		key      string
	)

	cmd := &cobra.Command{
		Use:   "move <device-id>",
		Short: "Move a device to a rack position in a lifecycle phase",
		Long: `Move a device. MODIFIED relocates the device in place. CREATE_PROPOSED
keeps the original as retiring and plans a copy at the target position.`,
		Args:    cobra.ExactArgs(1),
		GroupID: "inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := domain.ParsePhase(phase)
			if err != nil {
				return err
			}
			mt, err := lifecycle.ParseMoveType(moveType)
			if err != nil {
				return err
			}

			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			outcome, err := a.Inventory.MoveDevice(cmd.Context(), lifecycle.MoveRequest{
				DeviceID:        args[0],
				TargetRackID:    rackID,
				TargetUPosition: uPos,
				TargetPhase:     p,
				MoveType:        mt,
				UserID:          userID,
				Notes:           notes,
				IdempotencyKey:  key,
			})
			if err != nil {
				return describeMoveError(cmd, err)
			}

			w := cmd.OutOrStdout()
			if opts.jsonOutput {
				return outputJSON(w, outcome)
			}
			if outcome.Replayed {
				printWarning(w, "Move already applied, returning the original outcome")
			} else {
				printSuccess(w, fmt.Sprintf("Moved %s", args[0]))
			}
			d := outcome.Device
			printLabelValue(w, "Device", fmt.Sprintf("%s %s/U%d (%s)", d.ID, d.RackID, d.UStart, d.Status4D))
			if outcome.NewDevice != nil {
				n := outcome.NewDevice
				printLabelValue(w, "Proposed", fmt.Sprintf("%s %s/U%d (%s)", n.ID, n.RackID, n.UStart, n.Status4D))
			}
			printLabelValue(w, "Change set", outcome.ChangeSetID)
			return nil
		},
	}
	cmd.Flags().StringVar(&rackID, "rack", "", "Target rack id")
	cmd.Flags().IntVar(&uPos, "u", 0, "Target bottom U position")
	cmd.Flags().StringVar(&phase, "phase", string(domain.PhaseToBe), "Target phase: AS_IS, TO_BE or FUTURE")
	cmd.Flags().StringVar(&moveType, "type", string(lifecycle.MoveModified), "MODIFIED or CREATE_PROPOSED")
	cmd.Flags().StringVar(&userID, "user", "", "User recorded in history")
	cmd.Flags().StringVar(&notes, "notes", "", "Notes recorded in history")
	cmd.Flags().StringVar(&key, "idempotency-key", "", "Makes a retried move return the first outcome")
	_ = cmd.MarkFlagRequired("rack")
	_ = cmd.MarkFlagRequired("u")
	return cmd
}

// describeMoveError lists blocking devices before returning a conflict
func describeMoveError(cmd *cobra.Command, err error) error {
	var ce *domain.ConflictError
	if !errors.As(err, &ce) {
		return err
	}
	w := cmd.ErrOrStderr()
	printWarning(w, fmt.Sprintf("Rack %s is occupied in %s", ce.RackID, ce.Phase))
	rows := make([][]string, 0, len(ce.Devices))
	for _, d := range ce.Devices {
		rows = append(rows, []string{d.ID, d.Name, fmt.Sprintf("U%d-U%d", d.UStart, d.UEnd()-1), string(d.Status4D)})
	}
	printTable(w, []string{"Device", "Name", "Span", "Status"}, rows)
	return err
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "history <device-id>",
		Short:   "Show a device's equipment history",
		Args:    cobra.ExactArgs(1),
		GroupID: "inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.Inventory.DeviceHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.jsonOutput {
				return outputJSON(w, entries)
			}
			printSection(w, "History for "+args[0])
			if len(entries) == 0 {
				printEmptyState(w, "No history recorded")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.Timestamp.Format("2006-01-02 15:04"),
					string(e.ModificationType),
					e.FromLocation.String(),
					e.ToLocation.String(),
					e.StatusChange,
				})
			}
			printTable(w, []string{"When", "Change", "From", "To", "Status"}, rows)
			return nil
		},
	}
}
