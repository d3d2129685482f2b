package push

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kidoz/zabbix-vuln-matrix/internal/config"
)

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	calls []call
	fail  map[string]error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	file := args[len(args)-1]
	if err := f.fail[file]; err != nil {
		return []byte("processed: 0; failed: 3"), err
	}
	return []byte("processed: 3; failed: 0"), nil
}

func testPusher(t *testing.T, r Runner) (*Pusher, *observer.ObservedLogs, *[]time.Duration) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Zabbix.SenderPath = "/usr/bin/zabbix_sender"
	cfg.Zabbix.ServerFQDN = "zbx.example.com"
	cfg.Zabbix.ServerPort = 10051

	core, logs := observer.New(zapcore.DebugLevel)
	p := NewPusher(cfg, r, zap.New(core))

	var slept []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return p, logs, &slept
}

func TestPush_OrderAndDelay(t *testing.T) {
	r := &fakeRunner{}
	p, _, slept := testPusher(t, r)

	require.NoError(t, p.Push(context.Background(), "/w/lld.zbx", "/w/data.zbx"))

	require.Len(t, r.calls, 2)
	assert.Equal(t, "/usr/bin/zabbix_sender", r.calls[0].name)
	assert.Equal(t, []string{"-z", "zbx.example.com", "-p", "10051", "-i", "/w/lld.zbx"}, r.calls[0].args)
	assert.Equal(t, "/w/data.zbx", r.calls[1].args[5])
	assert.Equal(t, []time.Duration{300 * time.Second}, *slept)
}

func TestPush_SenderFailureIsNotFatal(t *testing.T) {
	r := &fakeRunner{fail: map[string]error{"/w/lld.zbx": errors.New("exit status 2")}}
	p, logs, _ := testPusher(t, r)

	require.NoError(t, p.Push(context.Background(), "/w/lld.zbx", "/w/data.zbx"))
	assert.Len(t, r.calls, 2)

	failed := logs.FilterMessage("zabbix_sender failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "processed: 0; failed: 3", failed[0].ContextMap()["output"])
}

func TestPush_CancelledDuringDelay(t *testing.T) {
	r := &fakeRunner{}
	p, _, _ := testPusher(t, r)
	p.sleep = sleepContext

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Push(ctx, "/w/lld.zbx", "/w/data.zbx")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, r.calls, 1, "data must not be pushed after cancellation")
}

func TestDryRun(t *testing.T) {
	r := &fakeRunner{}
	p, logs, _ := testPusher(t, r)

	p.DryRun("/w/lld.zbx", "/w/data.zbx")

	assert.Empty(t, r.calls)
	entries := logs.All()
	require.Len(t, entries, 1)
	cmd, _ := entries[0].ContextMap()["commands"].(string)
	assert.Equal(t,
		"/usr/bin/zabbix_sender -z zbx.example.com -p 10051 -i /w/lld.zbx; sleep 300; /usr/bin/zabbix_sender -z zbx.example.com -p 10051 -i /w/data.zbx",
		cmd)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, strings.Contains(sleepContext(ctx, time.Hour).Error(), "canceled"))
}
