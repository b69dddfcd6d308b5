package records

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")

	// ErrCausalGap: la entry declara dependencias que aún no llegaron.
	// Recuperable: el sync engine la bufferea y reintenta.
	ErrCausalGap = errors.New("causal gap")

	// ErrOwnershipViolation: la réplica no pertenece al device set del
	// owner del record. No se reintenta.
	ErrOwnershipViolation = errors.New("ownership violation")

	ErrNotFound = errors.New("record not found")
)
