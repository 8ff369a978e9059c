// Package validate implements the intent validator (component J, spec
// §4.7): a schema per intent type that enumerates mandatory/optional
// fields with type and size bounds, so that an invalid intent never
// reaches a handler. Grounded on ChatInfo.ValidateChat
// idiom (internal/v1/types/types.go) — a plain method returning a
// descriptive error per violated field — generalized from one hardcoded
// payload shape into a schema table keyed by intent type.
package validate

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/meshcall/controlplane/internal/apperror"
	"k8s.io/utils/set"
)

// Bounds spec §4.7 fixes.
const (
	MaxMetadataBytes  = 10 * 1024
	MaxIdentityBytes  = 256
	MinIdentityBytes  = 1
	MaxRoomNameBytes  = 64
	MaxReliableDataBytes = 256 * 1024
	MaxLossyDataBytes    = 16 * 1024
)

var roomNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// FieldKind names the shape a field value must have.
type FieldKind int

const (
	KindString FieldKind = iota
	KindNumber
	KindBool
	KindObject
	KindRoomName
	KindIdentity
	KindMetadata
)

// Field describes one payload field's validation rule.
type Field struct {
	Name     string
	Required bool
	Kind     FieldKind
	MaxLen   int      // for KindString, 0 means unbounded
	OneOf    []string // non-empty restricts a KindString field to an enum
}

// Schema is the full set of field rules for one intent type.
type Schema struct {
	IntentType string
	Fields     []Field
}

// Registry maps intent type to its Schema. Populated by schemas.go.
var Registry = map[string]Schema{}

func register(s Schema) {
	Registry[s.IntentType] = s
}

// Validate checks payload against the registered schema for intentType.
// An unrecognized intentType is itself treated by the caller (the
// dispatcher, spec §4.8) as invalidRequest — Validate only checks
// payload shape for types it knows.
func Validate(intentType string, payload map[string]any) error {
	schema, ok := Registry[intentType]
	if !ok {
		return apperror.New(apperror.InvalidRequest, fmt.Sprintf("unrecognized intent type %q", intentType))
	}

	for _, f := range schema.Fields {
		val, present := payload[f.Name]
		if !present {
			if f.Required {
				return apperror.New(apperror.InvalidRequest, fmt.Sprintf("%s: %s is required", intentType, f.Name))
			}
			continue
		}
		if err := validateField(intentType, f, val); err != nil {
			return err
		}
	}
	return nil
}

func validateField(intentType string, f Field, val any) error {
	path := intentType + "." + f.Name

	switch f.Kind {
	case KindString, KindRoomName, KindIdentity:
		s, ok := val.(string)
		if !ok {
			return apperror.New(apperror.InvalidRequest, path+": must be a string")
		}
		switch f.Kind {
		case KindRoomName:
			if !roomNamePattern.MatchString(s) {
				return apperror.New(apperror.InvalidRequest, path+": must match ^[A-Za-z0-9_-]{1,64}$")
			}
		case KindIdentity:
			if len(s) < MinIdentityBytes || len(s) > MaxIdentityBytes {
				return apperror.New(apperror.InvalidRequest, fmt.Sprintf("%s: must be 1-%d bytes", path, MaxIdentityBytes))
			}
		default:
			if f.MaxLen > 0 && len(s) > f.MaxLen {
				return apperror.New(apperror.InvalidRequest, fmt.Sprintf("%s: exceeds max length %d", path, f.MaxLen))
			}
		}
		if len(f.OneOf) > 0 && !set.New(f.OneOf...).Has(s) {
			return apperror.New(apperror.InvalidRequest, fmt.Sprintf("%s: must be one of %v", path, f.OneOf))
		}

	case KindNumber:
		switch val.(type) {
		case float64, int, int64:
		default:
			return apperror.New(apperror.InvalidRequest, path+": must be a number")
		}

	case KindBool:
		if _, ok := val.(bool); !ok {
			return apperror.New(apperror.InvalidRequest, path+": must be a boolean")
		}

	case KindObject:
		if _, ok := val.(map[string]any); !ok {
			return apperror.New(apperror.InvalidRequest, path+": must be an object")
		}

	case KindMetadata:
		meta, ok := val.(map[string]any)
		if !ok {
			return apperror.New(apperror.InvalidRequest, path+": must be an object")
		}
		b, err := json.Marshal(meta)
		if err != nil || len(b) > MaxMetadataBytes {
			return apperror.New(apperror.InvalidRequest, fmt.Sprintf("%s: exceeds %d bytes serialized", path, MaxMetadataBytes))
		}
	}
	return nil
}

// ValidateDataPayloadSize enforces M_data (spec §4.9 sendData): 256KB for
// the reliable (media-engine data channel) path, 16KB for the lossy/
// signaling-relay fallback path. Called after schema validation, once the
// handler knows which transport the payload will travel over.
func ValidateDataPayloadSize(kind string, payloadBytes int) error {
	limit := MaxReliableDataBytes
	if kind == "lossy" {
		limit = MaxLossyDataBytes
	}
	if payloadBytes > limit {
		return apperror.New(apperror.InvalidRequest, fmt.Sprintf("sendData.payload: exceeds %d byte cap for kind=%s", limit, kind))
	}
	return nil
}
