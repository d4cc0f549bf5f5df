package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"hvacautomation/internal/ha"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing(t *testing.T) {
	ring := NewRing(3)
	assert.False(t, ring.Full())
	assert.False(t, ring.Unanimous())

	ring.Push("Normal")
	ring.Push("Normal")
	assert.False(t, ring.Unanimous())

	ring.Push("Normal")
	assert.True(t, ring.Full())
	assert.True(t, ring.Unanimous())

	ring.Push("High")
	assert.Equal(t, []string{"Normal", "Normal", "High"}, ring.Entries())
	assert.False(t, ring.Unanimous())
	assert.Equal(t, 3, ring.Len())

	ring.Push("High")
	ring.Push("High")
	assert.True(t, ring.Unanimous())
	assert.Equal(t, "High,High,High", ring.Encode())
}

func TestRing_EntriesIsCopy(t *testing.T) {
	ring := NewRing(3)
	ring.Push("Reduced")
	entries := ring.Entries()
	entries[0] = "High"
	assert.Equal(t, []string{"Reduced"}, ring.Entries())
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		encoded  string
		expected []string
	}{
		{"empty", "", []string{}},
		{"single", "Normal", []string{"Normal"}},
		{"full", "Reduced,Normal,Normal", []string{"Reduced", "Normal", "Normal"}},
		{"over capacity keeps newest", "Holiday,Reduced,Normal,High", []string{"Reduced", "Normal", "High"}},
		{"empty entries", ",,", []string{"", "", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Decode(3, tt.encoded).Entries())
		})
	}
}

func TestEntityStore(t *testing.T) {
	ctx := context.Background()
	mock := ha.NewMockClient()
	store := NewEntityStore(mock, 3)

	t.Run("missing entity", func(t *testing.T) {
		_, err := store.Load(ctx, "input_text.previous_modes")
		assert.True(t, errors.Is(err, ha.ErrEntityNotFound))
	})

	t.Run("unknown state is empty", func(t *testing.T) {
		mock.SetState("input_text.previous_modes", "unknown", nil)
		ring, err := store.Load(ctx, "input_text.previous_modes")
		require.NoError(t, err)
		assert.Equal(t, 0, ring.Len())
	})

	t.Run("round trip through the entity", func(t *testing.T) {
		ring := Decode(3, "Normal,Normal")
		ring.Push("High")
		require.NoError(t, store.Save(ctx, "input_text.previous_modes", ring))

		calls := mock.GetServiceCalls()
		require.NotEmpty(t, calls)
		last := calls[len(calls)-1]
		assert.Equal(t, "input_text", last.Domain)
		assert.Equal(t, "Normal,Normal,High", last.Data["value"])

		loaded, err := store.Load(ctx, "input_text.previous_modes")
		require.NoError(t, err)
		assert.Equal(t, []string{"Normal", "Normal", "High"}, loaded.Entries())
	})

	t.Run("save error", func(t *testing.T) {
		mock.SetServiceError(errors.New("boom"))
		defer mock.SetServiceError(nil)
		assert.Error(t, store.Save(ctx, "input_text.previous_modes", NewRing(3)))
	})
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(3)

	ring, err := store.Load(ctx, "office")
	require.NoError(t, err)
	assert.Equal(t, 0, ring.Len())

	ring.Push("")
	require.NoError(t, store.Save(ctx, "office", ring))

	loaded, err := store.Load(ctx, "office")
	require.NoError(t, err)
	assert.Equal(t, []string{""}, loaded.Entries())

	other, _ := store.Load(ctx, "bedroom")
	assert.Equal(t, 0, other.Len())
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "history.db")

	store, err := OpenSQLiteStore(ctx, path, 3)
	require.NoError(t, err)

	ring, err := store.Load(ctx, "input_text.previous_modes")
	require.NoError(t, err)
	assert.Equal(t, 0, ring.Len())

	ring.Push("")
	require.NoError(t, store.Save(ctx, "input_text.previous_modes", ring))
	ring.Push("Normal")
	ring.Push("Normal")
	ring.Push("Normal")
	require.NoError(t, store.Save(ctx, "input_text.previous_modes", ring))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLiteStore(ctx, path, 3)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(ctx, "input_text.previous_modes")
	require.NoError(t, err)
	assert.Equal(t, []string{"Normal", "Normal", "Normal"}, loaded.Entries())
	assert.True(t, loaded.Unanimous())
}

func TestOpenSQLiteStore_EmptyPath(t *testing.T) {
	_, err := OpenSQLiteStore(context.Background(), "", 3)
	assert.Error(t, err)
}
