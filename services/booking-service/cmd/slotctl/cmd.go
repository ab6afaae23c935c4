package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	addr     string
	config   string
	timeout  time.Duration
	asJSON   bool
	logLevel string
}

func newRootCmd(out io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:          "slotctl",
		Short:        "Query free slots and reserve appointments",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&g.addr, "addr", "", "booking-service gRPC address (host:port)")
	root.PersistentFlags().StringVar(&g.config, "config", "", "clinic reference file for offline mode (yaml/json/toml)")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 5*time.Second, "per-command timeout")
	root.PersistentFlags().BoolVar(&g.asJSON, "json", false, "print JSON instead of a table")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level for offline mode")

	root.AddCommand(slotsCmd(g), checkCmd(g), reserveCmd(g))
	return root
}

func (g *globalFlags) open() (backend, error) {
	switch {
	case g.addr != "" && g.config != "":
		return nil, errors.New("use either --addr or --config, not both")
	case g.addr != "":
		return newRemoteBackend(g.addr, g.timeout)
	case g.config != "":
		return newLocalBackend(g.config, runtime.NewLoggerTo(os.Stderr, "slotctl", g.logLevel, "text"))
	default:
		return nil, errors.New("one of --addr or --config is required")
	}
}

// run opens the backend, applies the timeout and closes the backend afterwards.
func (g *globalFlags) run(cmd *cobra.Command, fn func(ctx context.Context, b backend) error) error {
	b, err := g.open()
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()
	ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
	defer cancel()
	return fn(ctx, b)
}

func slotsCmd(g *globalFlags) *cobra.Command {
	var clinicID, doctorID, date, serviceID string
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List free slots for a doctor on a date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(ctx context.Context, b backend) error {
				rows, err := b.Slots(ctx, clinicID, doctorID, date, serviceID)
				if err != nil {
					return err
				}
				if g.asJSON {
					return writeJSON(cmd.OutOrStdout(), rows)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SLOT\tLOCAL\tUTC\tMIN")
				for _, r := range rows {
					fmt.Fprintf(tw, "%s\t%s-%s\t%s\t%d\n", r.ID, r.StartLocal, r.EndLocal, r.StartUTC, r.Minutes)
				}
				fmt.Fprintf(tw, "%d free\n", len(rows))
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&clinicID, "clinic", "", "clinic id")
	cmd.Flags().StringVar(&doctorID, "doctor", "", "doctor id")
	cmd.Flags().StringVar(&date, "date", "", "clinic-local date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&serviceID, "service", "", "service id (optional)")
	markRequired(cmd, "clinic", "doctor", "date")
	return cmd
}

func checkCmd(g *globalFlags) *cobra.Command {
	var doctorID, date, start, end string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether an interval is free for a doctor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := time.Parse(time.RFC3339, start)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			e, err := time.Parse(time.RFC3339, end)
			if err != nil {
				return fmt.Errorf("--end: %w", err)
			}
			return g.run(cmd, func(ctx context.Context, b backend) error {
				id, err := b.Check(ctx, doctorID, date, s, e)
				if err != nil {
					return err
				}
				if g.asJSON {
					return writeJSON(cmd.OutOrStdout(), map[string]any{"free": id == "", "conflicting_appointment_id": id})
				}
				if id == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "free")
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "taken by %s\n", id)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&doctorID, "doctor", "", "doctor id")
	cmd.Flags().StringVar(&date, "date", "", "clinic-local date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&start, "start", "", "interval start (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "interval end (RFC3339)")
	markRequired(cmd, "doctor", "date", "start", "end")
	return cmd
}

func reserveCmd(g *globalFlags) *cobra.Command {
	var in reserveInput
	var start string
	cmd := &cobra.Command{
		Use:   "reserve",
		Short: "Book an appointment starting at the given instant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := time.Parse(time.RFC3339, start)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			in.Start = s.UTC()
			return g.run(cmd, func(ctx context.Context, b backend) error {
				res, err := b.Reserve(ctx, in)
				if err != nil {
					return err
				}
				if g.asJSON {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s-%s\n", res.AppointmentID, res.Status, res.StartUTC, res.EndUTC)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.ClinicID, "clinic", "", "clinic id")
	cmd.Flags().StringVar(&in.DoctorID, "doctor", "", "doctor id")
	cmd.Flags().StringVar(&in.ServiceID, "service", "", "service id (optional)")
	cmd.Flags().StringVar(&start, "start", "", "appointment start (RFC3339)")
	cmd.Flags().StringVar(&in.PatientRef, "patient", "", "patient reference")
	cmd.Flags().StringVar(&in.IdempotencyKey, "idempotency-key", "", "replay-safe request key")
	markRequired(cmd, "clinic", "doctor", "start", "patient")
	return cmd
}

func markRequired(cmd *cobra.Command, names ...string) {
	for _, n := range names {
		_ = cmd.MarkFlagRequired(n)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
