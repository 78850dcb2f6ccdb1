package models

import "github.com/shopspring/decimal"

// APIResponse is the standard JSON envelope for all API responses.
type APIResponse struct {
	Data interface{} `json:"data"`
	Meta *Meta       `json:"meta,omitempty"`
}

// Meta contains list metadata.
type Meta struct {
	Total int `json:"total,omitempty"`
}

// ProductType distinguishes components that carry process tracking (Motor)
// from components tracked by quantity alone.
type ProductType string

const (
	ProductMotor    ProductType = "Motor"
	ProductNonMotor ProductType = "NonMotor"
)

// Tracked reports whether instances of this product type carry process rows.
func (p ProductType) Tracked() bool { return p == ProductMotor }

// State is the derived progress state shared by processes, instances and work orders.
type State string

const (
	StatePending    State = "Pending"
	StateInProgress State = "InProgress"
	StateCompleted  State = "Completed"
)

// StageName is one entry of the fixed work order checklist.
type StageName string

const (
	StageAssembly StageName = "Assembly"
	StageTesting  StageName = "Testing"
	StagePDI      StageName = "PDI"
	StagePacking  StageName = "Packing"
	StageDispatch StageName = "Dispatch"
)

// StageOrder is the business display order of the work order stages.
var StageOrder = []StageName{StageAssembly, StageTesting, StagePDI, StagePacking, StageDispatch}

// Rank returns the position of the stage in StageOrder, or -1 when unknown.
func (s StageName) Rank() int {
	for i, name := range StageOrder {
		if name == s {
			return i
		}
	}
	return -1
}

type Component struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	ProductType ProductType `json:"product_type"`
	IsFixed     bool        `json:"is_fixed"`
	CreatedAt   string      `json:"created_at"`
	Processes   []Process   `json:"processes,omitempty"`
}

// Process is a process template: one manufacturing step of a component type.
type Process struct {
	ID                 int64  `json:"id"`
	ComponentID        int64  `json:"component_id"`
	Name               string `json:"name"`
	Sequence           int    `json:"sequence"`
	DefaultResponsible string `json:"default_responsible"`
	Description        string `json:"description"`
}

// MaterialRequirement is the design-time default raw material need per produced unit.
type MaterialRequirement struct {
	ComponentID     int64           `json:"component_id"`
	RawMaterialID   int64           `json:"raw_material_id"`
	QuantityPerUnit decimal.Decimal `json:"quantity_per_unit"`
}

type RawMaterial struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
	Unit string `json:"unit"`
}

type Order struct {
	ID        int64  `json:"id"`
	Reference string `json:"reference"`
	Customer  string `json:"customer"`
}

type WorkOrder struct {
	ID              int64             `json:"id"`
	OrderID         int64             `json:"order_id"`
	InstanceGroupID *int64            `json:"instance_group_id"`
	TargetDate      string            `json:"target_date"`
	Status          State             `json:"status"`
	CreatedAt       string            `json:"created_at"`
	UpdatedAt       string            `json:"updated_at"`
	Instances       []InstanceSummary `json:"instances,omitempty"`
}

// Instance is a component attached to a work order with a target quantity.
type Instance struct {
	ID          int64  `json:"id"`
	WorkOrderID int64  `json:"work_order_id"`
	ComponentID int64  `json:"component_id"`
	Quantity    int    `json:"quantity"`
	Version     int64  `json:"version"`
	CreatedAt   string `json:"created_at"`
}

// InstanceSummary is an instance as seen from its work order, with the
// status derived from its process rows.
type InstanceSummary struct {
	Instance
	ComponentName string      `json:"component_name"`
	ProductType   ProductType `json:"product_type"`
	MaterialPool  int         `json:"material_pool"`
	Status        State       `json:"status,omitempty"`
}

type MaterialAllocation struct {
	InstanceID    int64  `json:"instance_id"`
	RawMaterialID int64  `json:"raw_material_id"`
	Quantity      int    `json:"quantity"`
	UpdatedAt     string `json:"updated_at"`
}

// ProcessStatus is the per-instance, per-process progress record.
type ProcessStatus struct {
	InstanceID        int64   `json:"instance_id"`
	ProcessID         int64   `json:"process_id"`
	CompletedQuantity int     `json:"completed_quantity"`
	InUseQuantity     int     `json:"in_use_quantity"`
	AllowedQuantity   int     `json:"allowed_quantity"`
	CompletionDate    *string `json:"completion_date"`
	ResponsiblePerson *string `json:"responsible_person"`
	Status            State   `json:"status"`
	UpdatedAt         string  `json:"updated_at"`
}

type ProcessMaterialUsage struct {
	InstanceID    int64  `json:"instance_id"`
	ProcessID     int64  `json:"process_id"`
	RawMaterialID int64  `json:"raw_material_id"`
	UsedQuantity  int    `json:"used_quantity"`
	UpdatedAt     string `json:"updated_at"`
}

type WorkOrderStage struct {
	WorkOrderID int64     `json:"work_order_id"`
	StageName   StageName `json:"stage_name"`
	StageDate   string    `json:"stage_date"`
}

// BoardRow is one process row of a work order with its template names,
// as shown on the shop-floor dashboard.
type BoardRow struct {
	ProcessStatus
	ComponentName string `json:"component_name"`
	ProcessName   string `json:"process_name"`
	Sequence      int    `json:"sequence"`
	MaterialPool  int    `json:"material_pool"`
}

// MaterialPlanLine compares the design-time requirement of one raw material
// with what is currently allocated to an instance.
type MaterialPlanLine struct {
	RawMaterialID   int64           `json:"raw_material_id"`
	QuantityPerUnit decimal.Decimal `json:"quantity_per_unit"`
	Required        int             `json:"required"`
	Allocated       int             `json:"allocated"`
	Shortfall       int             `json:"shortfall"`
}

// AuditEntry represents a single audit log record.
type AuditEntry struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Action      string `json:"action"`
	Module      string `json:"module"`
	RecordID    string `json:"record_id"`
	Summary     string `json:"summary"`
	BeforeValue string `json:"before_value,omitempty"`
	AfterValue  string `json:"after_value,omitempty"`
	CreatedAt   string `json:"created_at"`
}
