package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"wotrack/internal/production"
	"wotrack/internal/sheets"
	"wotrack/internal/store"
)

func parseIDArg(name, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

func newBoardCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "board <workOrderID>",
		Short: "Show the process board of a work order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			woID, err := parseIDArg("work order id", args[0])
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(cmdCtx context.Context, _ *store.Store, e *production.Engine) error {
				wo, err := e.GetWorkOrder(cmdCtx, woID)
				if err != nil {
					return err
				}
				rows, err := e.Board(cmdCtx, woID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(rows)
				}

				fmt.Fprintf(out, "Work order %d  target %s  status %s\n", wo.ID, wo.TargetDate, wo.Status)
				table := make([][]string, 0, len(rows))
				for _, r := range rows {
					responsible := ""
					if r.ResponsiblePerson != nil {
						responsible = *r.ResponsiblePerson
					}
					table = append(table, []string{
						r.ComponentName,
						strconv.Itoa(r.Sequence),
						r.ProcessName,
						strconv.Itoa(r.InUseQuantity),
						strconv.Itoa(r.CompletedQuantity),
						strconv.Itoa(r.MaterialPool),
						string(r.Status),
						responsible,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Component", "Seq", "Process", "In use", "Completed", "Pool", "Status", "Responsible"},
					table,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the board as JSON")
	return cmd
}

func newStagesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stages <workOrderID>",
		Short: "Show the recorded stages of a work order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			woID, err := parseIDArg("work order id", args[0])
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(cmdCtx context.Context, _ *store.Store, e *production.Engine) error {
				stages, err := e.ListStages(cmdCtx, woID)
				if err != nil {
					return err
				}
				if len(stages) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No stages recorded")
					return nil
				}
				rows := make([][]string, 0, len(stages))
				for _, s := range stages {
					rows = append(rows, []string{string(s.StageName), s.StageDate})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Stage", "Date"}, rows, nil))
				return nil
			})
		},
	}
}

func newImportProcessesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import-processes <componentID> <file.xlsx>",
		Short: "Register a component's process routing from a workbook",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			componentID, err := parseIDArg("component id", args[0])
			if err != nil {
				return err
			}
			f, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("open routing workbook: %w", err)
			}
			defer f.Close()
			inputs, err := sheets.ReadProcessRoutings(f)
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(cmdCtx context.Context, _ *store.Store, e *production.Engine) error {
				procs, err := e.ImportProcesses(cmdCtx, componentID, inputs)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d processes into component %d\n", len(procs), componentID)
				return nil
			})
		},
	}
}

func newExportBoardCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export-board <workOrderID> <file.xlsx>",
		Short: "Write a work order's process board and stages to a workbook",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			woID, err := parseIDArg("work order id", args[0])
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(cmdCtx context.Context, _ *store.Store, e *production.Engine) error {
				rows, err := e.Board(cmdCtx, woID)
				if err != nil {
					return err
				}
				stages, err := e.ListStages(cmdCtx, woID)
				if err != nil {
					return err
				}
				f, err := os.Create(args[1])
				if err != nil {
					return fmt.Errorf("create workbook: %w", err)
				}
				if err := sheets.WriteBoard(f, rows, stages); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return fmt.Errorf("close workbook: %w", err)
				}
				if err := e.RecordBoardExport(cmdCtx, woID, len(rows)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d process rows to %s\n", len(rows), args[1])
				return nil
			})
		},
	}
}
