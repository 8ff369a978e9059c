package validate

import (
	"strings"
	"testing"

	"github.com/meshcall/controlplane/internal/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_JoinRoomHappyPath(t *testing.T) {
	err := Validate("joinRoom", map[string]any{
		"room":  "my-room_1",
		"token": "abc.def.ghi",
	})
	assert.NoError(t, err)
}

func TestValidate_MissingRequiredField(t *testing.T) {
	err := Validate("joinRoom", map[string]any{"room": "alpha"})
	require.Error(t, err)
	assert.Equal(t, apperror.InvalidRequest, apperror.KindOf(err))
	assert.Contains(t, err.Error(), "token is required")
}

func TestValidate_RoomNamePattern(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"alpha-Room_1", true},
		{"has a space", false},
		{"", false},
		{strings.Repeat("a", 65), false},
		{strings.Repeat("a", 64), true},
	}
	for _, c := range cases {
		err := Validate("joinRoom", map[string]any{"room": c.name, "token": "t"})
		if c.valid {
			assert.NoError(t, err, c.name)
		} else {
			assert.Error(t, err, c.name)
		}
	}
}

func TestValidate_IdentityBounds(t *testing.T) {
	err := Validate("startCall", map[string]any{"targetUserId": ""})
	assert.Error(t, err)

	err = Validate("startCall", map[string]any{"targetUserId": strings.Repeat("a", 257)})
	assert.Error(t, err)

	err = Validate("startCall", map[string]any{"targetUserId": "bob"})
	assert.NoError(t, err)
}

func TestValidate_MetadataSizeCap(t *testing.T) {
	big := map[string]any{"blob": strings.Repeat("x", MaxMetadataBytes)}
	err := Validate("joinRoom", map[string]any{"room": "alpha", "token": "t", "metadata": big})
	assert.Error(t, err)

	small := map[string]any{"k": "v"}
	err = Validate("joinRoom", map[string]any{"room": "alpha", "token": "t", "metadata": small})
	assert.NoError(t, err)
}

func TestValidate_SendDataKindEnum(t *testing.T) {
	err := Validate("sendData", map[string]any{"payload": "hi", "kind": "reliable"})
	assert.NoError(t, err)

	err = Validate("sendData", map[string]any{"payload": "hi", "kind": "unknown"})
	assert.Error(t, err)
}

func TestValidate_UnrecognizedIntentType(t *testing.T) {
	err := Validate("doesNotExist", map[string]any{})
	require.Error(t, err)
	assert.Equal(t, apperror.InvalidRequest, apperror.KindOf(err))
}

func TestValidate_NoFieldsIntentIgnoresExtraFields(t *testing.T) {
	err := Validate("leaveRoom", map[string]any{"unexpected": "field"})
	assert.NoError(t, err)
}

func TestValidateDataPayloadSize(t *testing.T) {
	assert.NoError(t, ValidateDataPayloadSize("reliable", MaxReliableDataBytes))
	assert.Error(t, ValidateDataPayloadSize("reliable", MaxReliableDataBytes+1))
	assert.NoError(t, ValidateDataPayloadSize("lossy", MaxLossyDataBytes))
	assert.Error(t, ValidateDataPayloadSize("lossy", MaxLossyDataBytes+1))
}
