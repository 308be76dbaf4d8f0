package lock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/fieldinventory/internal/domain/models"
)

func TestLocalGate(t *testing.T) {
	g := NewLocalGate()
	ctx := context.Background()

	release, err := g.Acquire(ctx, "pull:s1")
	require.NoError(t, err)

	_, err = g.Acquire(ctx, "pull:s1")
	assert.True(t, errors.Is(err, models.ErrOperationInProgress))

	other, err := g.Acquire(ctx, "push:s1")
	require.NoError(t, err)
	other()

	release()
	release()

	again, err := g.Acquire(ctx, "pull:s1")
	require.NoError(t, err)
	again()
}
