package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"wotrack/internal/audit"
	"wotrack/internal/models"
	"wotrack/internal/production"
	"wotrack/internal/store"
	"wotrack/internal/validation"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	var pruneDays int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or verify the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := ctx.commandCtx(cmd)
			s, err := ctx.openStore(cmdCtx)
			if err != nil {
				return err
			}
			defer s.Close()

			version, err := s.Version(cmdCtx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: schema version %d\n", s.Path(), version)

			if pruneDays > 0 {
				removed, err := audit.Cleanup(cmdCtx, s.DB(), pruneDays)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d audit entries older than %d days\n", removed, pruneDays)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&pruneDays, "prune-audit-days", 0, "Delete audit entries older than this many days")
	return cmd
}

type seedProcess struct {
	name        string
	responsible string
}

type seedComponent struct {
	name        string
	productType models.ProductType
	processes   []seedProcess
	perUnit     map[string]string
	quantity    int
	allocate    map[string]int
}

var seedRawMaterials = []struct{ code, name, unit string }{
	{"CU-01", "Copper winding wire", "kg"},
	{"ST-02", "Lamination steel", "kg"},
	{"VN-03", "Insulating varnish", "l"},
}

var seedComponents = []seedComponent{
	{
		name:        "Stator",
		productType: models.ProductMotor,
		processes: []seedProcess{
			{"Core pressing", "Ravi"}, {"Winding", "Meena"}, {"Varnishing", "Meena"}, {"Surge testing", "Arjun"},
		},
		perUnit:  map[string]string{"CU-01": "2.5", "ST-02": "4"},
		quantity: 10,
		allocate: map[string]int{"CU-01": 25, "ST-02": 40},
	},
	{
		name:        "Rotor",
		productType: models.ProductMotor,
		processes:   []seedProcess{{"Shaft machining", "Kiran"}, {"Die casting", "Kiran"}, {"Balancing", "Arjun"}},
		perUnit:     map[string]string{"ST-02": "3"},
		quantity:    10,
		allocate:    map[string]int{"ST-02": 30},
	},
	{name: "Terminal box", productType: models.ProductNonMotor, quantity: 10},
}

func newSeedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load a demo order, raw materials, components and one work order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(cmdCtx context.Context, s *store.Store, e *production.Engine) error {
				if _, err := s.RawMaterialByCode(cmdCtx, seedRawMaterials[0].code); err == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "database already seeded")
					return nil
				} else if !errors.Is(err, sql.ErrNoRows) {
					return err
				}
				woID, err := seed(cmdCtx, s, e, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded work order %d\n", woID)
				return nil
			})
		},
	}
}

func seed(ctx context.Context, s *store.Store, e *production.Engine, now time.Time) (int64, error) {
	orderID, err := s.InsertOrder(ctx, "DEMO-001", "Demo Pumps Ltd")
	if err != nil {
		return 0, err
	}
	materials := make(map[string]int64, len(seedRawMaterials))
	for _, rm := range seedRawMaterials {
		id, err := s.InsertRawMaterial(ctx, rm.code, rm.name, rm.unit)
		if err != nil {
			return 0, err
		}
		materials[rm.code] = id
	}

	wo, err := e.CreateWorkOrder(ctx, production.WorkOrderInput{
		OrderID:    orderID,
		TargetDate: now.AddDate(0, 0, 30).Format(validation.DateLayout),
	})
	if err != nil {
		return 0, err
	}

	for _, sc := range seedComponents {
		c, err := e.RegisterComponent(ctx, production.ComponentInput{Name: sc.name, ProductType: sc.productType})
		if err != nil {
			return 0, err
		}
		if len(sc.processes) > 0 {
			inputs := make([]production.ProcessInput, len(sc.processes))
			for i, p := range sc.processes {
				inputs[i] = production.ProcessInput{Name: p.name, Sequence: (i + 1) * 10, DefaultResponsible: p.responsible}
			}
			if _, err := e.ImportProcesses(ctx, c.ID, inputs); err != nil {
				return 0, err
			}
		}
		for code, perUnit := range sc.perUnit {
			if _, err := e.RegisterMaterialRequirement(ctx, c.ID, materials[code], decimal.RequireFromString(perUnit)); err != nil {
				return 0, err
			}
		}
		inst, err := e.AddComponentInstance(ctx, wo.ID, c.ID, sc.quantity)
		if err != nil {
			return 0, err
		}
		for code, qty := range sc.allocate {
			if _, err := e.AssignMaterial(ctx, inst.ID, materials[code], qty); err != nil {
				return 0, err
			}
		}
	}
	return wo.ID, nil
}
