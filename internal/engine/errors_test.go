package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/ledgersync/internal/remote"
)

func TestSyncError_Error(t *testing.T) {
	cause := errors.New("connection refused")

	err := newWriteError("upsert", remote.TableSales, cause)
	assert.Equal(t, "REMOTE_WRITE_FAILED: upsert failed (table=sales): connection refused", err.Error())
	assert.ErrorIs(t, err, cause)

	dec := newDecodeError(remote.Change{Table: remote.TableCustomers, Type: remote.ChangeInsert, New: remote.Row{"id": "c1"}}, cause)
	assert.Contains(t, dec.Error(), "(table=customers, id=c1)")
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", newBootstrapError(remote.TablePurchases, errors.New("boom")))

	assert.True(t, HasCode(err, ErrCodeBootstrap))
	assert.False(t, HasCode(err, ErrCodeDecode))
	assert.False(t, HasCode(errors.New("plain"), ErrCodeBootstrap))
}

func TestNotFound(t *testing.T) {
	err := notFound("customer", "c9")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "customer c9: not found", err.Error())
}
