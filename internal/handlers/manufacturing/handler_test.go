package manufacturing_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/xuri/excelize/v2"

	"wotrack/internal/audit"
	"wotrack/internal/handlers/manufacturing"
	"wotrack/internal/models"
	"wotrack/internal/production"
	"wotrack/internal/testutil"
)

func newTestHandler(t *testing.T) (*manufacturing.Handler, *testutil.Env) {
	t.Helper()
	env := testutil.NewEnv(t)
	return &manufacturing.Handler{Engine: env.Engine, Store: env.Store}, env
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestCreateComponent(t *testing.T) {
	h, _ := newTestHandler(t)

	rr := serve(h, testutil.JSONRequest("POST", "/api/v1/components", map[string]any{
		"name": "Stator", "product_type": "Motor",
	}, ""))
	testutil.AssertStatus(t, rr, http.StatusCreated)
	var c models.Component
	testutil.DecodeEnvelope(t, rr, &c)
	if c.ID == 0 || c.Name != "Stator" || c.ProductType != models.ProductMotor {
		t.Errorf("unexpected component %+v", c)
	}

	rr = serve(h, testutil.JSONRequest("POST", "/api/v1/components", map[string]any{
		"name": "STATOR", "product_type": "Motor",
	}, ""))
	testutil.AssertStatus(t, rr, http.StatusConflict)
	if _, kind := testutil.DecodeError(t, rr); kind != "conflict" {
		t.Errorf("kind = %q, want conflict", kind)
	}
}

func TestCreateComponentValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	rr := serve(h, testutil.JSONRequest("POST", "/api/v1/components", map[string]any{
		"name": "Rotor", "product_type": "Gearbox",
	}, ""))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)

	rr = serve(h, testutil.JSONRequest("POST", "/api/v1/components", map[string]any{
		"name": "Rotor", "product_type": "Motor", "colour": "red",
	}, ""))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

func TestWorkOrderFlow(t *testing.T) {
	h, env := newTestHandler(t)
	comp, procs := env.Motor(t, "Stator", "Winding", "Varnishing")

	rr := serve(h, testutil.JSONRequest("POST", "/api/v1/workorders", map[string]any{
		"order_id": env.OrderID, "target_date": "2026-05-01",
	}, ""))
	testutil.AssertStatus(t, rr, http.StatusCreated)
	var wo models.WorkOrder
	testutil.DecodeEnvelope(t, rr, &wo)
	if wo.Status != models.StatePending {
		t.Fatalf("new work order status = %s", wo.Status)
	}

	rr = serve(h, testutil.JSONRequest("POST", fmt.Sprintf("/api/v1/workorders/%d/instances", wo.ID), map[string]any{
		"component_id": comp.ID, "quantity": 10,
	}, ""))
	testutil.AssertStatus(t, rr, http.StatusCreated)
	var inst models.InstanceSummary
	testutil.DecodeEnvelope(t, rr, &inst)

	rr = serve(h, testutil.JSONRequest("POST", fmt.Sprintf("/api/v1/instances/%d/materials", inst.ID), map[string]any{
		"raw_material_id": env.Copper, "quantity": 100,
	}, ""))
	testutil.AssertStatus(t, rr, http.StatusOK)
	var asg production.Assignment
	testutil.DecodeEnvelope(t, rr, &asg)
	if asg.MaterialPool != 100 {
		t.Fatalf("material pool = %d, want 100", asg.MaterialPool)
	}

	path := fmt.Sprintf("/api/v1/instances/%d/processes/%d", inst.ID, procs[0].ID)
	rr = serve(h, testutil.JSONRequest("PUT", path, map[string]any{"in_use_quantity": 60}, ""))
	testutil.AssertStatus(t, rr, http.StatusOK)
	var ps models.ProcessStatus
	testutil.DecodeEnvelope(t, rr, &ps)
	if ps.Status != models.StateInProgress || ps.AllowedQuantity != 100 {
		t.Errorf("process status = %+v", ps)
	}

	path = fmt.Sprintf("/api/v1/instances/%d/processes/%d", inst.ID, procs[1].ID)
	rr = serve(h, testutil.JSONRequest("PUT", path, map[string]any{"in_use_quantity": 50}, ""))
	testutil.AssertStatus(t, rr, http.StatusUnprocessableEntity)
	if _, kind := testutil.DecodeError(t, rr); kind != "capacity" {
		t.Errorf("kind = %q, want capacity", kind)
	}

	rr = serve(h, httptest.NewRequest("GET", fmt.Sprintf("/api/v1/workorders/%d", wo.ID), nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.DecodeEnvelope(t, rr, &wo)
	if wo.Status != models.StateInProgress || len(wo.Instances) != 1 {
		t.Errorf("work order = %+v", wo)
	}

	rr = serve(h, httptest.NewRequest("GET", fmt.Sprintf("/api/v1/workorders/%d/board", wo.ID), nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	var board []models.BoardRow
	testutil.DecodeEnvelope(t, rr, &board)
	if len(board) != 2 || board[0].ProcessName != "Winding" || board[0].InUseQuantity != 60 {
		t.Errorf("board = %+v", board)
	}
}

func TestProcessRoutesRejectNonMotor(t *testing.T) {
	h, env := newTestHandler(t)
	ctx := context.Background()
	c, err := env.Engine.RegisterComponent(ctx, production.ComponentInput{Name: "Terminal box", ProductType: models.ProductNonMotor})
	if err != nil {
		t.Fatal(err)
	}
	wo := env.WorkOrder(t)
	inst := env.Instance(t, wo.ID, c.ID, 4)

	rr := serve(h, httptest.NewRequest("GET", fmt.Sprintf("/api/v1/instances/%d/processes", inst.ID), nil))
	testutil.AssertStatus(t, rr, http.StatusUnprocessableEntity)
	if _, kind := testutil.DecodeError(t, rr); kind != "not_applicable" {
		t.Errorf("kind = %q, want not_applicable", kind)
	}
}

func TestRoutingErrors(t *testing.T) {
	h, _ := newTestHandler(t)
	tests := []struct {
		method, path string
		want         int
	}{
		{"GET", "/api/v1/workorders/abc", http.StatusBadRequest},
		{"GET", "/api/v1/workorders/0", http.StatusBadRequest},
		{"GET", "/api/v1/workorders/999", http.StatusNotFound},
		{"GET", "/api/v1/instances/999/processes", http.StatusNotFound},
		{"GET", "/api/v1/nothing", http.StatusNotFound},
		{"DELETE", "/api/v1/components", http.StatusNotFound},
		{"GET", "/api/v1/workorders?order_id=x", http.StatusBadRequest},
		{"GET", "/api/v1/audit?limit=-1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rr := serve(h, httptest.NewRequest(tt.method, tt.path, nil))
		if rr.Code != tt.want {
			t.Errorf("%s %s = %d, want %d (%s)", tt.method, tt.path, rr.Code, tt.want, rr.Body.String())
		}
	}
}

func TestStagesRoutes(t *testing.T) {
	h, env := newTestHandler(t)
	wo := env.WorkOrder(t)

	path := fmt.Sprintf("/api/v1/workorders/%d/stages/", wo.ID)
	rr := serve(h, testutil.JSONRequest("PUT", path+"Testing", map[string]any{"stage_date": "2026-04-10"}, ""))
	testutil.AssertStatus(t, rr, http.StatusOK)
	rr = serve(h, testutil.JSONRequest("PUT", path+"Assembly", map[string]any{"stage_date": "2026-04-02"}, ""))
	testutil.AssertStatus(t, rr, http.StatusOK)
	rr = serve(h, testutil.JSONRequest("PUT", path+"Painting", map[string]any{"stage_date": "2026-04-02"}, ""))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)

	rr = serve(h, httptest.NewRequest("GET", fmt.Sprintf("/api/v1/workorders/%d/stages", wo.ID), nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	var stages []models.WorkOrderStage
	testutil.DecodeEnvelope(t, rr, &stages)
	if len(stages) != 2 || stages[0].StageName != models.StageAssembly {
		t.Errorf("stages = %+v", stages)
	}
}

func TestImportProcessesWorkbook(t *testing.T) {
	h, env := newTestHandler(t)
	c, err := env.Engine.RegisterComponent(context.Background(), production.ComponentInput{Name: "Rotor", ProductType: models.ProductMotor})
	if err != nil {
		t.Fatal(err)
	}

	f := excelize.NewFile()
	rows := [][]any{{"Sequence", "Name", "Responsible"}, {0, "Shaft machining", "Ravi"}, {10, "Balancing", "Meena"}}
	for r, row := range rows {
		for col, v := range row {
			cell, _ := excelize.CoordinatesToCellName(col+1, r+1)
			f.SetCellValue("Sheet1", cell, v)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}
	f.Close()

	req := httptest.NewRequest("POST", fmt.Sprintf("/api/v1/components/%d/processes/import", c.ID), &buf)
	req.Header.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	rr := serve(h, req)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	var procs []models.Process
	testutil.DecodeEnvelope(t, rr, &procs)
	if len(procs) != 2 || procs[1].Name != "Balancing" || procs[1].DefaultResponsible != "Meena" {
		t.Errorf("imported = %+v", procs)
	}

	req = httptest.NewRequest("POST", fmt.Sprintf("/api/v1/components/%d/processes/import", c.ID), bytes.NewReader([]byte("garbage")))
	testutil.AssertStatus(t, serve(h, req), http.StatusBadRequest)

	rr = serve(h, testutil.JSONRequest("POST", fmt.Sprintf("/api/v1/components/%d/processes/import", c.ID),
		[]map[string]any{{"name": "Balancing", "sequence": 20}}, ""))
	testutil.AssertStatus(t, rr, http.StatusConflict)
}

func TestExportBoardWorkbook(t *testing.T) {
	h, env := newTestHandler(t)
	comp, _ := env.Motor(t, "Stator", "Winding")
	wo := env.WorkOrder(t)
	env.Instance(t, wo.ID, comp.ID, 2)

	rr := serve(h, httptest.NewRequest("GET", fmt.Sprintf("/api/v1/workorders/%d/board.xlsx", wo.ID), nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	if ct := rr.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("content type = %q", ct)
	}
	f, err := excelize.OpenReader(rr.Body)
	if err != nil {
		t.Fatalf("open exported workbook: %v", err)
	}
	defer f.Close()
	got, _ := f.GetRows("Board")
	if len(got) != 2 || got[1][2] != "Winding" {
		t.Errorf("board rows = %v", got)
	}

	entries, err := audit.List(context.Background(), env.Store.DB(), audit.Filter{Action: audit.ActionExport})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].RecordID != fmt.Sprint(wo.ID) {
		t.Errorf("export audit entries = %+v", entries)
	}
}

func TestMaterialRoutes(t *testing.T) {
	h, env := newTestHandler(t)
	comp, procs := env.Motor(t, "Stator", "Winding")
	wo := env.WorkOrder(t)
	inst := env.Instance(t, wo.ID, comp.ID, 10)

	rr := serve(h, testutil.JSONRequest("POST", fmt.Sprintf("/api/v1/components/%d/materials", comp.ID), map[string]any{
		"raw_material_id": env.Copper, "quantity_per_unit": "2.5",
	}, ""))
	testutil.AssertStatus(t, rr, http.StatusCreated)

	rr = serve(h, testutil.JSONRequest("POST", fmt.Sprintf("/api/v1/instances/%d/materials", inst.ID), map[string]any{
		"raw_material_id": env.Copper, "quantity": 20,
	}, ""))
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = serve(h, httptest.NewRequest("GET", fmt.Sprintf("/api/v1/instances/%d/materials/plan", inst.ID), nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	var plan []models.MaterialPlanLine
	testutil.DecodeEnvelope(t, rr, &plan)
	if len(plan) != 1 || plan[0].Required != 25 || plan[0].Allocated != 20 || plan[0].Shortfall != 5 {
		t.Errorf("plan = %+v", plan)
	}

	path := fmt.Sprintf("/api/v1/instances/%d/processes/%d/materials/%d", inst.ID, procs[0].ID, env.Copper)
	rr = serve(h, testutil.JSONRequest("PUT", path, map[string]any{"used_quantity": 7}, ""))
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = serve(h, httptest.NewRequest("GET", fmt.Sprintf("/api/v1/instances/%d/usage", inst.ID), nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	var usage []models.ProcessMaterialUsage
	testutil.DecodeEnvelope(t, rr, &usage)
	if len(usage) != 1 || usage[0].UsedQuantity != 7 {
		t.Errorf("usage = %+v", usage)
	}
}
