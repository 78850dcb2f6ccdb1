package validation

// Enum values - these MUST match the CHECK constraints in internal/store/schema.sql.
var (
	ValidProductTypes = []string{"Motor", "NonMotor"}
	ValidStageNames   = []string{"Assembly", "Testing", "PDI", "Packing", "Dispatch"}
)
