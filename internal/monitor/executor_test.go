package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fuomag9/checkpulse/internal/logstore"
	"github.com/fuomag9/checkpulse/internal/models"
	"github.com/fuomag9/checkpulse/internal/store"
)

const (
	testCheckID = "abcdefghij0123456789"
	testPhone   = "5551234567"
)

var fixedNow = time.UnixMilli(1700000060000)

type stubProber struct {
	outcome Outcome
}

func (p stubProber) Probe(ctx context.Context, check *models.Check) Outcome {
	return p.outcome
}

type recordingSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (s *recordingSender) Send(ctx context.Context, recipient, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, recipient+": "+message)
	return nil
}

func (s *recordingSender) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

type recordingHub struct {
	mu    sync.Mutex
	types []string
}

func (h *recordingHub) Broadcast(msgType string, payload interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.types = append(h.types, msgType)
	return nil
}

// failingUpdates wraps a store and refuses every update
type failingUpdates struct {
	store.Store
}

func (f failingUpdates) Update(ctx context.Context, collection, id string, data []byte) error {
	return errors.New("disk full")
}

type fixture struct {
	records *store.FileStore
	logs    *logstore.Store
	sender  *recordingSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	records, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	logs, err := logstore.New(t.TempDir())
	require.NoError(t, err)

	return &fixture{records: records, logs: logs, sender: &recordingSender{}}
}

func (f *fixture) executor(outcome Outcome, opts ...Option) *Executor {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewExecutor(f.records, f.logs, stubProber{outcome: outcome}, f.sender, opts...)
}

func (f *fixture) putCheck(t *testing.T, id string, mutate func(c *models.Check)) {
	t.Helper()

	c := &models.Check{
		ID:             id,
		UserPhone:      testPhone,
		Protocol:       "https",
		URL:            "example.com/health",
		Method:         "get",
		SuccessCodes:   []int{200},
		TimeoutSeconds: 3,
	}
	if mutate != nil {
		mutate(c)
	}
	data, err := json.Marshal(c)
	require.NoError(t, err)
	require.NoError(t, f.records.Create(context.Background(), models.CollectionChecks, id, data))
}

func (f *fixture) putUser(t *testing.T) {
	t.Helper()

	data, err := json.Marshal(models.User{Phone: testPhone, FirstName: "Ada", LastName: "Lovelace"})
	require.NoError(t, err)
	require.NoError(t, f.records.Create(context.Background(), models.CollectionUsers, testPhone, data))
}

func (f *fixture) stored(t *testing.T, id string) *models.Check {
	t.Helper()

	data, err := f.records.Read(context.Background(), models.CollectionChecks, id)
	require.NoError(t, err)
	check, err := ValidateCheck(data)
	require.NoError(t, err)
	return check
}

func wasUp(c *models.Check) {
	lastChecked := int64(1700000000000)
	c.State = models.StateUp
	c.LastChecked = &lastChecked
}

func TestExecutorProcessCheck(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("up_to_down_alerts_owner", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.putUser(t)
		f.putCheck(t, testCheckID, wasUp)
		hub := &recordingHub{}

		result, err := f.executor(ResponseOutcome(500), WithBroadcaster(hub)).ProcessCheck(ctx, testCheckID)
		require.NoError(t, err)
		require.True(t, result.Alerted)
		require.NoError(t, result.AlertErr)

		require.Equal(t, []string{
			testPhone + ": Alert: Your check for GET https://example.com/health is currently down",
		}, f.sender.messages())

		stored := f.stored(t, testCheckID)
		require.Equal(t, models.StateDown, stored.State)
		require.Equal(t, fixedNow.UnixMilli(), *stored.LastChecked)
		require.Equal(t, 500, *stored.LastStatus)

		content, err := f.logs.Read(testCheckID)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(content), "\n")
		require.Len(t, lines, 1)

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
		require.Equal(t, "down", entry["state"])
		require.Equal(t, true, entry["alert"])
		require.Equal(t, float64(fixedNow.UnixMilli()), entry["time"])
		require.Equal(t, map[string]interface{}{"error": false, "responseCode": float64(500)}, entry["outcome"])
		require.Equal(t, "up", entry["check"].(map[string]interface{})["state"])

		require.Equal(t, []string{"probe"}, hub.types)
	})

	t.Run("first_probe_never_alerts", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.putUser(t)
		f.putCheck(t, testCheckID, nil)

		result, err := f.executor(ResponseOutcome(500)).ProcessCheck(ctx, testCheckID)
		require.NoError(t, err)
		require.False(t, result.Decision.AlertWarranted)
		require.Empty(t, f.sender.messages())

		stored := f.stored(t, testCheckID)
		require.Equal(t, models.StateDown, stored.State)
		require.True(t, stored.HasBeenProbed())
	})

	t.Run("timeout_records_no_status", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.putCheck(t, testCheckID, nil)

		_, err := f.executor(FailureOutcome(TimeoutCause)).ProcessCheck(ctx, testCheckID)
		require.NoError(t, err)

		stored := f.stored(t, testCheckID)
		require.Equal(t, models.StateDown, stored.State)
		require.Nil(t, stored.LastStatus)
	})

	t.Run("missing_owner_skips_alert_but_persists", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.putCheck(t, testCheckID, wasUp)

		result, err := f.executor(ResponseOutcome(503)).ProcessCheck(ctx, testCheckID)
		require.NoError(t, err)
		require.False(t, result.Alerted)
		require.ErrorIs(t, result.AlertErr, ErrOwnerMissing)
		require.Empty(t, f.sender.messages())
		require.Equal(t, models.StateDown, f.stored(t, testCheckID).State)
	})

	t.Run("send_failure_is_reported", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.putUser(t)
		f.putCheck(t, testCheckID, wasUp)
		f.sender.err = errors.New("provider unavailable")

		result, err := f.executor(ResponseOutcome(500)).ProcessCheck(ctx, testCheckID)
		require.NoError(t, err)
		require.False(t, result.Alerted)
		require.Error(t, result.AlertErr)
	})

	t.Run("update_failure_suppresses_alert", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.putUser(t)
		f.putCheck(t, testCheckID, wasUp)

		e := NewExecutor(failingUpdates{f.records}, f.logs, stubProber{outcome: ResponseOutcome(500)}, f.sender)
		_, err := e.ProcessCheck(ctx, testCheckID)
		require.Error(t, err)
		require.Empty(t, f.sender.messages())

		content, err := f.logs.Read(testCheckID)
		require.NoError(t, err)
		require.NotEmpty(t, content)
	})

	t.Run("invalid_check_is_skipped", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.putCheck(t, testCheckID, func(c *models.Check) { c.TimeoutSeconds = 9 })

		_, err := f.executor(ResponseOutcome(200)).ProcessCheck(ctx, testCheckID)
		require.ErrorIs(t, err, ErrInvalidCheck)

		_, err = f.logs.Read(testCheckID)
		require.ErrorIs(t, err, logstore.ErrNotFound)
	})

	t.Run("missing_check", func(t *testing.T) {
		t.Parallel()

		_, err := newFixture(t).executor(ResponseOutcome(200)).ProcessCheck(ctx, testCheckID)
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestExecutorRunCycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("no_checks", func(t *testing.T) {
		t.Parallel()

		report := newFixture(t).executor(ResponseOutcome(200)).RunCycle(ctx)
		require.Zero(t, report.Total)
		require.NotEmpty(t, report.CycleID)
	})

	t.Run("invalid_check_does_not_stop_others", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.putUser(t)
		f.putCheck(t, "aaaaaaaaaaaaaaaaaaaa", wasUp)
		f.putCheck(t, "bbbbbbbbbbbbbbbbbbbb", nil)
		f.putCheck(t, "cccccccccccccccccccc", func(c *models.Check) { c.Method = "patch" })

		report := f.executor(ResponseOutcome(500), WithWorkers(2)).RunCycle(ctx)
		require.Equal(t, 3, report.Total)
		require.Equal(t, 2, report.Processed)
		require.Equal(t, 1, report.Failed)
		require.Len(t, f.sender.messages(), 1)

		require.Equal(t, models.StateDown, f.stored(t, "aaaaaaaaaaaaaaaaaaaa").State)
		require.Equal(t, models.StateDown, f.stored(t, "bbbbbbbbbbbbbbbbbbbb").State)
	})

	t.Run("second_cycle_alerts_on_recovery", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.putUser(t)
		f.putCheck(t, testCheckID, nil)

		f.executor(ResponseOutcome(500)).RunCycle(ctx)
		require.Empty(t, f.sender.messages())

		f.executor(ResponseOutcome(200)).RunCycle(ctx)
		require.Equal(t, []string{
			testPhone + ": Alert: Your check for GET https://example.com/health is currently up",
		}, f.sender.messages())
	})
}
