package request

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTouchAccumulatesFleets(t *testing.T) {
	rc := New("client-1")
	ctx := With(context.Background(), rc)
	Touch(ctx, "b")
	Touch(ctx, "a")
	Touch(ctx, "b")
	Touch(ctx, "")
	assert.Equal(t, []string{"a", "b"}, rc.Fleets())
	assert.Equal(t, "client-1", From(ctx).Requester)
}

func TestTouchWithoutUnitIsNoop(t *testing.T) {
	Touch(context.Background(), "a")
	var rc *Context
	assert.Nil(t, rc.Fleets())
}
