package notify

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendradar/internal/storage"
)

func TestSplitAccounts(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitAccounts("a;b", 3))
	assert.Equal(t, []string{"a", "b", "c"}, SplitAccounts("a;b;c;d;e", 3))
	assert.Equal(t, []string{"a"}, SplitAccounts(" a ; ;", 3))
	assert.Nil(t, SplitAccounts("", 3))
	// Zero cap falls back to the default.
	assert.Len(t, SplitAccounts("a;b;c;d", 0), DefaultMaxAccounts)
}

func TestSplitTokenPairs(t *testing.T) {
	pairs, err := SplitTokenPairs("t1;t2", "c1;c2", 3)
	require.NoError(t, err)
	assert.Equal(t, []TokenPair{{"t1", "c1"}, {"t2", "c2"}}, pairs)

	_, err = SplitTokenPairs("t1;t2", "c1", 3)
	assert.Error(t, err, "cardinality mismatch skips the channel")
}

func TestGate(t *testing.T) {
	backend := storage.NewLocalBackend(storage.LocalOptions{
		DataDir:  t.TempDir(),
		Timezone: "Asia/Shanghai",
		Logger:   slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	})
	t.Cleanup(backend.Cleanup)

	gate := NewGate(backend)
	ctx := context.Background()

	ok, err := gate.ShouldPush(ctx, "2025-11-26")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, gate.MarkPushed(ctx, "daily", "2025-11-26"))

	ok, err = gate.ShouldPush(ctx, "2025-11-26")
	require.NoError(t, err)
	assert.False(t, ok)
}
