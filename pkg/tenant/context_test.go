package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := ToContext(context.Background(), &Context{UserID: "u-1", Role: RoleSupport})

	tc, err := FromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u-1", tc.UserID)
	assert.True(t, tc.IsStaff())
	assert.NoError(t, tc.Validate())
}

func TestFromContext_DefaultsRoleToUser(t *testing.T) {
	tc, err := FromContext(ToContext(context.Background(), &Context{UserID: "u-2"}))
	require.NoError(t, err)
	assert.Equal(t, RoleUser, tc.Role)
	assert.False(t, tc.IsStaff())
}

func TestFromContext_MissingActor(t *testing.T) {
	_, err := FromContext(context.Background())
	assert.ErrorIs(t, err, ErrMissingActor)
	assert.Equal(t, "", FromContextOptional(context.Background()).UserID)
}

func TestValidate_UnknownRole(t *testing.T) {
	tc := &Context{UserID: "u-3", Role: "warehouse"}
	assert.ErrorIs(t, tc.Validate(), ErrUnknownRole)
}
