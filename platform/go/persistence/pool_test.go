package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewPoolRequiresConnString(t *testing.T) {
	_, err := NewPool(context.Background(), PoolConfig{})
	require.Error(t, err)
}

func TestPingWithRetryEventuallySucceeds(t *testing.T) {
	calls := 0
	ping := func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	err := pingWithRetry(context.Background(), ping, PoolConfig{
		ConnectAttempts: 5,
		ConnectDelay:    time.Millisecond,
		Logger:          zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestPingWithRetryGivesUp(t *testing.T) {
	calls := 0
	ping := func(context.Context) error {
		calls++
		return errors.New("connection refused")
	}

	err := pingWithRetry(context.Background(), ping, PoolConfig{ConnectAttempts: 2, ConnectDelay: time.Millisecond})
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection refused")
	require.Equal(t, 2, calls)
}

func TestPingWithRetrySingleAttemptByDefault(t *testing.T) {
	calls := 0
	err := pingWithRetry(context.Background(), func(context.Context) error {
		calls++
		return errors.New("down")
	}, PoolConfig{})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}
