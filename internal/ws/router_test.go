package ws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterDispatchTyped(t *testing.T) {
	r := NewRouter()
	var got ContentUpdate
	Register(r, TypeContentUpdate, func(_ context.Context, _ *Session, req ContentUpdate) error {
		got = req
		return nil
	})

	raw := json.RawMessage(`{"type":"content_update","content":"<p>hi</p>"}`)
	err := r.dispatch(context.Background(), nil, TypeContentUpdate, raw)
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", got.Content)
}

func TestRouterUnknownType(t *testing.T) {
	r := NewRouter()
	err := r.dispatch(context.Background(), nil, "bogus", json.RawMessage(`{"type":"bogus"}`))
	assert.ErrorIs(t, err, errUnknownType)
}

func TestRouterUndecodablePayload(t *testing.T) {
	r := NewRouter()
	Register(r, TypeCellUpdate, func(_ context.Context, _ *Session, _ CellUpdate) error {
		t.Fatal("handler must not run on undecodable payload")
		return nil
	})

	raw := json.RawMessage(`{"type":"cell_update","changes":"not-a-list"}`)
	err := r.dispatch(context.Background(), nil, TypeCellUpdate, raw)
	assert.Error(t, err)
}

func TestRegisterEmptyTypePanics(t *testing.T) {
	r := NewRouter()
	assert.Panics(t, func() {
		Register(r, "", func(context.Context, *Session, struct{}) error { return nil })
	})
}
