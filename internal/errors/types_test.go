package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorPredicates(t *testing.T) {
	assert.True(t, IsInvalidEmbedding(NewInvalidEmbeddingError("bad dim")))
	assert.True(t, IsTransientConflict(NewTransientConflictError("assign", 5)))
	assert.True(t, IsClusterNotFound(NewClusterNotFoundError("c1")))
	assert.True(t, IsSelfMerge(NewSelfMergeError("c1")))
	assert.True(t, IsNameCollision(NewNameCollisionError("Sunsets")))

	assert.False(t, IsTransientConflict(NewClusterNotFoundError("c1")))
	assert.False(t, IsClusterNotFound(errors.New("plain")))
	assert.False(t, IsClusterNotFound(nil))
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	inner := NewTransientConflictError("assign", 5)
	wrapped := fmt.Errorf("process asset: %w", inner)
	assert.True(t, IsTransientConflict(wrapped))
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewSystemError(ErrCodeDatabaseError, "save failed").WithCause(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "save failed")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestGetAppError(t *testing.T) {
	appErr := GetAppError(NewNameCollisionError("x"))
	assert.Equal(t, ErrCodeNameCollision, appErr.Code)
	assert.Equal(t, http.StatusConflict, appErr.HTTPCode)

	wrapped := GetAppError(errors.New("boom"))
	assert.Equal(t, ErrCodeInternalServer, wrapped.Code)
	assert.NotNil(t, wrapped.Cause)
}
