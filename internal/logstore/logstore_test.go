package logstore

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(t.TempDir())
	require.NoError(t, err)

	return s
}

func TestStore(t *testing.T) {
	t.Parallel()

	t.Run("append_creates_and_appends_lines", func(t *testing.T) {
		t.Parallel()

		s := newStore(t)
		require.NoError(t, s.Append("check1", `{"n":1}`))
		require.NoError(t, s.Append("check1", `{"n":2}`))

		content, err := s.Read("check1")
		require.NoError(t, err)
		require.Equal(t, "{\"n\":1}\n{\"n\":2}\n", content)
	})

	t.Run("compress_truncate_round_trip", func(t *testing.T) {
		t.Parallel()

		s := newStore(t)

		var expected strings.Builder
		for i := 0; i < 25; i++ {
			line := fmt.Sprintf(`{"line":%d}`, i)
			require.NoError(t, s.Append("check1", line))
			expected.WriteString(line + "\n")
		}

		require.NoError(t, s.Compress("check1", "check1-1700000000000"))
		require.NoError(t, s.Truncate("check1"))

		archived, err := s.Decompress("check1-1700000000000")
		require.NoError(t, err)
		require.Equal(t, expected.String(), archived)

		live, err := s.Read("check1")
		require.NoError(t, err)
		require.Empty(t, live)
	})

	t.Run("truncate_keeps_lines_appended_after_compress", func(t *testing.T) {
		t.Parallel()

		s := newStore(t)
		require.NoError(t, s.Append("check1", "old"))
		require.NoError(t, s.Compress("check1", "check1-1"))
		require.NoError(t, s.Append("check1", "new"))
		require.NoError(t, s.Truncate("check1"))

		live, err := s.Read("check1")
		require.NoError(t, err)
		require.Equal(t, "new\n", live)
	})

	t.Run("compress_refuses_existing_archive", func(t *testing.T) {
		t.Parallel()

		s := newStore(t)
		require.NoError(t, s.Append("check1", "line"))
		require.NoError(t, s.Compress("check1", "check1-1"))
		require.ErrorIs(t, s.Compress("check1", "check1-1"), ErrExists)
	})

	t.Run("compress_empty_log", func(t *testing.T) {
		t.Parallel()

		s := newStore(t)
		require.NoError(t, s.Append("check1", "line"))
		require.NoError(t, s.Truncate("check1"))
		require.ErrorIs(t, s.Compress("check1", "check1-1"), ErrEmptyLog)
	})

	t.Run("missing_files", func(t *testing.T) {
		t.Parallel()

		s := newStore(t)
		require.ErrorIs(t, s.Compress("nope", "nope-1"), ErrNotFound)
		require.ErrorIs(t, s.Truncate("nope"), ErrNotFound)
		_, err := s.Decompress("nope-1")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list_live_and_archived", func(t *testing.T) {
		t.Parallel()

		s := newStore(t)
		require.NoError(t, s.Append("b", "line"))
		require.NoError(t, s.Append("a", "line"))
		require.NoError(t, s.Compress("a", "a-1"))

		live, err := s.List(false)
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b"}, live)

		all, err := s.List(true)
		require.NoError(t, err)
		require.Equal(t, []string{"a", "a-1", "b"}, all)
	})

	t.Run("empty_directory_lists_nothing", func(t *testing.T) {
		t.Parallel()

		ids, err := newStore(t).List(true)
		require.NoError(t, err)
		require.Empty(t, ids)
	})

	t.Run("concurrent_appends_to_distinct_logs", func(t *testing.T) {
		t.Parallel()

		s := newStore(t)

		wg := new(sync.WaitGroup)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				for j := 0; j < 20; j++ {
					assert.NoError(t, s.Append(fmt.Sprintf("check%d", i), "line"))
				}
			}(i)
		}
		wg.Wait()

		for i := 0; i < 8; i++ {
			content, err := s.Read(fmt.Sprintf("check%d", i))
			require.NoError(t, err)
			require.Equal(t, 20, strings.Count(content, "\n"))
		}
	})

	t.Run("rejects_invalid_ids", func(t *testing.T) {
		t.Parallel()

		require.ErrorIs(t, newStore(t).Append("../x", "line"), ErrInvalidID)
	})
}
