// Package testutil provides in-memory store and engine fixtures for
// package tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wotrack/internal/events"
	"wotrack/internal/logging"
	"wotrack/internal/models"
	"wotrack/internal/production"
	"wotrack/internal/store"
)

// Now is the fixed clock used by engines built here.
var Now = time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

// Env is a seeded in-memory store with an engine on top. OrderID and the
// raw materials exist before the test starts.
type Env struct {
	Store   *store.Store
	Engine  *production.Engine
	Events  *events.Recorder
	OrderID int64
	Copper  int64
	Steel   int64
}

// SetupTestStore opens an in-memory store with the full schema.
func SetupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Options{Path: store.MemoryPath, InitialBackoff: time.Millisecond})
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// NewEnv builds a seeded Env whose engine records every published event.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	s := SetupTestStore(t)
	rec := &events.Recorder{}
	env := &Env{
		Store:  s,
		Events: rec,
		Engine: production.New(s, production.Options{Publisher: rec, Logger: logging.NewNop(), Now: func() time.Time { return Now }}),
	}

	ctx := context.Background()
	var err error
	if env.OrderID, err = s.InsertOrder(ctx, "SO-2001", "Test Customer"); err != nil {
		t.Fatalf("Failed to seed order: %v", err)
	}
	if env.Copper, err = s.InsertRawMaterial(ctx, "CU-01", "Copper winding wire", "kg"); err != nil {
		t.Fatalf("Failed to seed raw material: %v", err)
	}
	if env.Steel, err = s.InsertRawMaterial(ctx, "ST-02", "Lamination steel", "kg"); err != nil {
		t.Fatalf("Failed to seed raw material: %v", err)
	}
	return env
}

// Motor registers a Motor component with the named processes at sequences
// 0, 10, 20 and so on.
func (e *Env) Motor(t *testing.T, name string, processes ...string) (models.Component, []models.Process) {
	t.Helper()
	ctx := context.Background()
	c, err := e.Engine.RegisterComponent(ctx, production.ComponentInput{Name: name, ProductType: models.ProductMotor})
	if err != nil {
		t.Fatalf("Failed to register component %s: %v", name, err)
	}
	inputs := make([]production.ProcessInput, len(processes))
	for i, p := range processes {
		inputs[i] = production.ProcessInput{Name: p, Sequence: i * 10}
	}
	procs, err := e.Engine.ImportProcesses(ctx, c.ID, inputs)
	if err != nil {
		t.Fatalf("Failed to register processes for %s: %v", name, err)
	}
	return *c, procs
}

// WorkOrder creates a work order under the seeded order.
func (e *Env) WorkOrder(t *testing.T) models.WorkOrder {
	t.Helper()
	wo, err := e.Engine.CreateWorkOrder(context.Background(), production.WorkOrderInput{OrderID: e.OrderID, TargetDate: "2026-04-30"})
	if err != nil {
		t.Fatalf("Failed to create work order: %v", err)
	}
	return *wo
}

// Instance attaches componentID to the work order.
func (e *Env) Instance(t *testing.T, workOrderID, componentID int64, qty int) models.InstanceSummary {
	t.Helper()
	inst, err := e.Engine.AddComponentInstance(context.Background(), workOrderID, componentID, qty)
	if err != nil {
		t.Fatalf("Failed to add instance: %v", err)
	}
	return *inst
}

// JSONRequest creates a request with a JSON body and the given operator.
func JSONRequest(method, path string, body interface{}, operator string) *http.Request {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if operator != "" {
		req.Header.Set("X-Operator", operator)
	}
	return req
}

// DecodeAPIResponse decodes an APIResponse from a ResponseRecorder.
func DecodeAPIResponse(t *testing.T, w *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var response models.APIResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode API response: %v", err)
	}
	return response
}

// AssertStatus checks that the HTTP status code matches expected.
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// DecodeEnvelope decodes an API response envelope and extracts the data.
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode API envelope: %v", err)
	}
	dataBytes, _ := json.Marshal(resp.Data)
	if err := json.Unmarshal(dataBytes, v); err != nil {
		t.Fatalf("Failed to decode data from envelope: %v", err)
	}
}

// DecodeError decodes an error response body.
func DecodeError(t *testing.T, w *httptest.ResponseRecorder) (msg, kind string) {
	t.Helper()
	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	return body.Error, body.Kind
}
