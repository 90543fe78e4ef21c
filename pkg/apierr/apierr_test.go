package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind_StatusMapsEveryTaxonomyEntry(t *testing.T) {
	cases := map[Kind]int{
		Input:         http.StatusBadRequest,
		Safety:        http.StatusUnprocessableEntity,
		Policy:        http.StatusForbidden,
		Capacity:      http.StatusConflict,
		Transport:     http.StatusBadGateway,
		Execution:     http.StatusUnprocessableEntity,
		Integrity:     http.StatusBadRequest,
		Configuration: http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.Status(), kind)
	}
}

func TestKind_UnknownDefaultsToInternalServerError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, Kind("bogus").Status())
}

func TestNew_WrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := New(Capacity, "no agents available", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "no agents available")
}

func TestAs_UnwrapsThroughFmtErrorf(t *testing.T) {
	original := New(Transport, "agent agent-1 unreachable", nil)
	wrapped := fmt.Errorf("dispatch failed: %w", original)

	got, ok := As(wrapped)
	require := assert.New(t)
	require.True(ok)
	require.Equal(Transport, got.Kind)
}

func TestAs_FalseForPlainError(t *testing.T) {
	_, ok := As(errors.New("plain"))
	assert.False(t, ok)
}
