package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type address struct {
	Pincode string `json:"pincode" validate:"required,pincode"`
}

type request struct {
	Carrier string  `json:"carrier" validate:"required,carrier"`
	AWB     string  `json:"awb" validate:"omitempty,awb"`
	Weight  float64 `json:"weight" validate:"gt=0"`
	Origin  address `json:"origin"`
}

func TestStruct_CustomTags(t *testing.T) {
	ok := request{Carrier: "delhivery", Weight: 0.5, Origin: address{Pincode: "110001"}}
	require.NoError(t, Struct(ok))

	bad := request{Carrier: "Del Hivery", AWB: "x", Weight: 0, Origin: address{Pincode: "011001"}}
	fields := Fields(Struct(bad))

	assert.Equal(t, map[string]string{
		"carrier":        "must be a carrier code",
		"awb":            "must be a valid AWB",
		"weight":         "must be greater than 0",
		"origin.pincode": "must be a 6-digit pincode",
	}, fields)
}

func TestIsPincode(t *testing.T) {
	assert.True(t, IsPincode("560034"))
	assert.False(t, IsPincode("56003"))
	assert.False(t, IsPincode("056003"))
	assert.False(t, IsPincode("56003a"))
}

func TestFields_NonValidationError(t *testing.T) {
	assert.Empty(t, Fields(assert.AnError))
}
