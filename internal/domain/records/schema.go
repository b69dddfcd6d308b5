package records

import (
	"fmt"
	"strings"
)

// Campos bien conocidos, compartidos entre el core y los handlers.
const (
	FieldName              = "name"
	FieldEmail             = "email"
	FieldBloodGroup        = "blood_group"
	FieldAllergies         = "allergies"
	FieldChronicConditions = "chronic_conditions"

	FieldTitle           = "title"
	FieldReportDate      = "report_date"
	FieldFileType        = "file_type"
	FieldContent         = "content"
	FieldIsEmergency     = "is_emergency"
	FieldAnalysisSummary = "analysis_summary"
	FieldCriticalLevel   = "critical_level"
	FieldMetrics         = "metrics"
	FieldRecommendations = "recommendations"
)

// schema declara los campos válidos por kind y su variante. Campos
// dinámicos sin perder type safety: variante explícita por campo.
var schemas = map[Kind]map[string]ValueKind{
	KindProfile: {
		FieldName:              ValueString,
		FieldEmail:             ValueString,
		FieldBloodGroup:        ValueString,
		FieldAllergies:         ValueList,
		FieldChronicConditions: ValueList,
	},
	KindReport: {
		FieldTitle:           ValueString,
		FieldReportDate:      ValueString,
		FieldFileType:        ValueString,
		FieldContent:         ValueString,
		FieldIsEmergency:     ValueString,
		FieldAnalysisSummary: ValueString,
		FieldCriticalLevel:   ValueString,
		FieldMetrics:         ValueList,
		FieldRecommendations: ValueList,
	},
}

// ValidKind valida el kind declarado.
func ValidKind(k Kind) bool {
	_, ok := schemas[k]
	return ok
}

// ValidatePatches valida nombres de campo y variantes contra el schema del
// kind. Se invoca en el append, antes de persistir nada.
func ValidatePatches(kind Kind, patches map[string]FieldPatch) error {
	schema, ok := schemas[kind]
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, kind)
	}
	if len(patches) == 0 {
		return fmt.Errorf("%w: empty patch set", ErrInvalidInput)
	}

	for name, p := range patches {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: empty field name", ErrInvalidInput)
		}
		if p.Op == OpTombstone {
			continue
		}

		want, ok := schema[name]
		if !ok {
			return fmt.Errorf("%w: field %q not in %s schema", ErrInvalidInput, name, kind)
		}

		switch p.Op {
		case OpSet:
			if p.Value.Kind != want {
				return fmt.Errorf("%w: field %q wants %s, got %s", ErrInvalidInput, name, want, p.Value.Kind)
			}
		case OpListAdd, OpListRemove:
			if want != ValueList {
				return fmt.Errorf("%w: field %q is not a list", ErrInvalidInput, name)
			}
			if p.Value.Kind != ValueList || len(p.Value.List) == 0 {
				return fmt.Errorf("%w: list op on %q needs items", ErrInvalidInput, name)
			}
		default:
			return fmt.Errorf("%w: unknown op %q", ErrInvalidInput, p.Op)
		}
	}
	return nil
}
