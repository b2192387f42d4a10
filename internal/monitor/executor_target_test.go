package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fuomag9/checkpulse/internal/models"
)

func countingServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func pointAt(serverURL string) func(c *models.Check) {
	return func(c *models.Check) {
		c.Protocol = "http"
		c.URL = strings.TrimPrefix(serverURL, "http://") + "/health"
	}
}

func TestExecutorTargetGuard(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("refused_target_is_never_contacted", func(t *testing.T) {
		t.Parallel()

		srv, hits := countingServer(t)
		f := newFixture(t)
		f.putUser(t)
		f.putCheck(t, testCheckID, pointAt(srv.URL))

		e := NewExecutor(f.records, f.logs, NewHTTPProber(), f.sender, WithTargetGuard(NewTargetGuard(false)))
		result, err := e.ProcessCheck(ctx, testCheckID)
		require.NoError(t, err)

		require.Zero(t, hits.Load())
		require.True(t, result.Outcome.Failed())
		require.Equal(t, ForbiddenCause, result.Outcome.Failure.Value)
		require.Equal(t, models.StateDown, f.stored(t, testCheckID).State)

		content, err := f.logs.Read(testCheckID)
		require.NoError(t, err)
		require.Contains(t, content, `"value":"forbidden target"`)
	})

	t.Run("dial_control_checks_resolved_address", func(t *testing.T) {
		t.Parallel()

		srv, hits := countingServer(t)
		f := newFixture(t)
		f.putCheck(t, testCheckID, pointAt(srv.URL))

		prober := NewHTTPProber(WithDialControl(NewTargetGuard(false).DialControl))
		result, err := NewExecutor(f.records, f.logs, prober, f.sender).ProcessCheck(ctx, testCheckID)
		require.NoError(t, err)

		require.Zero(t, hits.Load())
		require.True(t, result.Outcome.Failed())
		require.Contains(t, result.Outcome.Failure.Value, ErrForbiddenTarget.Error())
		require.Equal(t, models.StateDown, result.Decision.State)
	})

	t.Run("private_targets_allowed_when_configured", func(t *testing.T) {
		t.Parallel()

		srv, hits := countingServer(t)
		f := newFixture(t)
		f.putCheck(t, testCheckID, pointAt(srv.URL))

		guard := NewTargetGuard(true)
		prober := NewHTTPProber(WithDialControl(guard.DialControl))
		result, err := NewExecutor(f.records, f.logs, prober, f.sender, WithTargetGuard(guard)).ProcessCheck(ctx, testCheckID)
		require.NoError(t, err)

		require.Equal(t, int64(1), hits.Load())
		require.Equal(t, models.StateUp, result.Decision.State)
	})
}
