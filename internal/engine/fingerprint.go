package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	types "github.com/driftmend/driftmend-backend/internal/domain/drift"
)

// ErrValidation marks malformed field observations. They are rejected before
// fingerprinting, never silently coerced.
var ErrValidation = errors.New("invalid field observations")

// ValidateObservations rejects empty snapshots, blank field names and blank
// types.
func ValidateObservations(obs map[string]types.FieldObservation) error {
	if len(obs) == 0 {
		return fmt.Errorf("%w: empty observation set", ErrValidation)
	}
	for name, fo := range obs {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: blank field name", ErrValidation)
		}
		if strings.TrimSpace(fo.Type) == "" {
			return fmt.Errorf("%w: field %q has no type", ErrValidation, name)
		}
	}
	return nil
}

// ComputeFingerprint derives the canonical field list and its hash from one
// observation snapshot. Pure: the same observed set always yields the same
// result. Fields are sorted by name before hashing so source-side reordering
// does not register as drift.
func ComputeFingerprint(obs map[string]types.FieldObservation) ([]types.FieldSignature, string, error) {
	if err := ValidateObservations(obs); err != nil {
		return nil, "", err
	}

	fields := make([]types.FieldSignature, 0, len(obs))
	for name, fo := range obs {
		fields = append(fields, types.FieldSignature{
			Name:     name,
			Type:     fo.Type,
			Nullable: fo.Nullable,
		})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })

	h := sha256.New()
	for _, f := range fields {
		h.Write([]byte(f.Name))
		h.Write([]byte{0})
		h.Write([]byte(f.Type))
		h.Write([]byte{0})
		if f.Nullable {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
		h.Write([]byte{'\n'})
	}
	return fields, hex.EncodeToString(h.Sum(nil)), nil
}
