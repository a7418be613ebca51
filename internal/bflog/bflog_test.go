package bflog

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestForWithoutInitReturnsNoOp(t *testing.T) {
	mu.Lock()
	base = nil
	loggers = make(map[Category]*zap.SugaredLogger)
	mu.Unlock()
	require.NotNil(t, For(CategorySearch)) // falls back to a no-op logger
}

func TestInitAndSetRunID(t *testing.T) {
	require.NoError(t, Init(false))
	defer Sync()

	SetRunID("abc-123")
	require.NotNil(t, For(CategoryBandit))
}
