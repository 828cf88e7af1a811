package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"dinsos-bot/internal/clock"
	"dinsos-bot/internal/config"
	"dinsos-bot/internal/domain"
	"dinsos-bot/internal/metrics"
	"dinsos-bot/internal/store"
)

func TestNew_Validates(t *testing.T) {
	_, err := New(nil, nil, Stage{Filter: SelfGroup{}})
	require.Error(t, err)
	_, err = New(discardLogger(), nil)
	require.Error(t, err)
	_, err = New(discardLogger(), nil, Stage{})
	require.Error(t, err)
}

func TestAdmit_StopsAtFirstRejection(t *testing.T) {
	first := &stubFilter{name: "first", verdict: accept("ok")}
	second := &stubFilter{name: "second", verdict: Verdict{Reason: "no", Reply: "warning"}}
	third := &stubFilter{name: "third", verdict: accept("ok")}
	p, err := New(discardLogger(), nil, Stage{Filter: first}, Stage{Filter: second}, Stage{Filter: third})
	require.NoError(t, err)

	d := p.Admit(context.Background(), newMsg("s1", "halo"))
	require.False(t, d.Accepted)
	require.Equal(t, "second", d.Filter)
	require.Equal(t, []string{"warning"}, d.Replies)
	require.Equal(t, 1, first.calls)
	require.Equal(t, 1, second.calls)
	require.Zero(t, third.calls)
}

func TestAdmit_ErrorPolicies(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	open := &stubFilter{name: "open", err: errUnavailable}
	closed := &stubFilter{name: "closed", err: errUnavailable}
	p, err := New(discardLogger(), m,
		Stage{Filter: open, OnError: FailOpen},
		Stage{Filter: closed, OnError: FailClosed},
	)
	require.NoError(t, err)

	d := p.Admit(context.Background(), newMsg("s1", "halo"))
	require.False(t, d.Accepted)
	require.Equal(t, "closed", d.Filter)
	require.Empty(t, d.Replies, "fail-closed rejections are silent")
	require.Equal(t, 1, open.calls)
	require.Equal(t, 1.0, testutil.ToFloat64(m.FilterErrors.WithLabelValues("open", "fail_open")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.FilterErrors.WithLabelValues("closed", "fail_closed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.MessagesRejected.WithLabelValues("closed")))
}

func TestBuild_OrderAndPolicies(t *testing.T) {
	cfg, err := config.Parse([]byte("filter_policies: {rate_limit: fail_open}"))
	require.NoError(t, err)
	mem := store.NewMemory()
	p, err := Build(cfg, Deps{Clock: clock.NewManual(base), Activations: mem, RateLimits: mem, Logger: discardLogger()})
	require.NoError(t, err)

	require.Equal(t, []string{
		FilterSelfGroup, FilterOldMessage, FilterManualReply, FilterBlacklist,
		FilterContext, FilterOptIn, FilterRateLimit,
	}, p.Names())
	for _, s := range p.stages {
		switch s.Filter.Name() {
		case FilterOptIn:
			require.Equal(t, FailClosed, s.OnError)
		default:
			require.Equal(t, FailOpen, s.OnError, s.Filter.Name())
		}
	}
}

func TestBuild_RequiresDeps(t *testing.T) {
	cfg, err := config.Parse(nil)
	require.NoError(t, err)
	mem := store.NewMemory()
	_, err = Build(nil, Deps{})
	require.Error(t, err)
	_, err = Build(cfg, Deps{Activations: mem, RateLimits: mem, Logger: discardLogger()})
	require.Error(t, err)
	_, err = Build(cfg, Deps{Clock: clock.System{}, RateLimits: mem, Logger: discardLogger()})
	require.Error(t, err)
	_, err = Build(cfg, Deps{Clock: clock.System{}, Activations: mem, Logger: discardLogger()})
	require.Error(t, err)
}

func newStandard(t *testing.T, s store.Store, clk clock.Clock) *Pipeline {
	t.Helper()
	cfg, err := config.Parse([]byte(`personal_contacts: ["family@c.us"]`))
	require.NoError(t, err)
	p, err := Build(cfg, Deps{Clock: clk, Activations: s, RateLimits: s, Logger: discardLogger()})
	require.NoError(t, err)
	return p
}

func TestStandard_OldMessageRejectedBeforeAnyReply(t *testing.T) {
	mem := store.NewMemory()
	clk := clock.NewManual(base.Add(13 * time.Hour))
	p := newStandard(t, mem, clk)

	d := p.Admit(context.Background(), newMsg("s1", "halo"))
	require.False(t, d.Accepted)
	require.Equal(t, FilterOldMessage, d.Filter)
	require.Empty(t, d.Replies)

	rec, err := mem.GetActivation(context.Background(), "s1")
	require.NoError(t, err)
	require.Nil(t, rec, "later filters never ran")
}

func TestStandard_NewSenderNeedsKeyword(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	p := newStandard(t, mem, clock.NewManual(base))

	d := p.Admit(ctx, newMsg("s1", "apa kabar?"))
	require.False(t, d.Accepted)
	require.Equal(t, FilterOptIn, d.Filter)
	require.Empty(t, d.Replies)
	rec, err := mem.GetActivation(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, rec)

	d = p.Admit(ctx, newMsg("s1", "halo"))
	require.True(t, d.Accepted)
	rec, err = mem.GetActivation(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.True(t, rec.Activated)

	d = p.Admit(ctx, newMsg("s1", "apa kabar?"))
	require.True(t, d.Accepted, "activated senders need no keyword")
}

func TestStandard_BlacklistedSender(t *testing.T) {
	p := newStandard(t, store.NewMemory(), clock.NewManual(base))
	d := p.Admit(context.Background(), newMsg("family@c.us", "halo"))
	require.False(t, d.Accepted)
	require.Equal(t, FilterBlacklist, d.Filter)
}

func TestStandard_SelfAndGroup(t *testing.T) {
	p := newStandard(t, store.NewMemory(), clock.NewManual(base))

	self := newMsg("s1", "halo")
	self.IsFromSelf = true
	require.Equal(t, FilterSelfGroup, p.Admit(context.Background(), self).Filter)

	group := newMsg("s1", "halo")
	group.IsGroup = true
	require.Equal(t, FilterSelfGroup, p.Admit(context.Background(), group).Filter)
}

func TestStandard_ActivationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	clk := clock.NewManual(base)
	p := newStandard(t, mem, clk)

	require.True(t, p.Admit(ctx, newMsg("s1", "halo")).Accepted)
	first, err := mem.GetActivation(ctx, "s1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		clk.Advance(time.Minute)
		msg := newMsg("s1", "halo")
		msg.TimestampSeconds = clk.Now().Unix()
		require.True(t, p.Admit(ctx, msg).Accepted)
	}
	again, err := mem.GetActivation(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, first.ActivatedAt, again.ActivatedAt)

	n, err := mem.CountActivations(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rl, err := mem.GetRateLimit(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 4, rl.Count)
}

func TestStandard_StoreOutageFailsClosed(t *testing.T) {
	fs := &failingStore{Memory: store.NewMemory(), getErr: errUnavailable}
	p := newStandard(t, fs, clock.NewManual(base))
	d := p.Admit(context.Background(), newMsg("s1", "halo"))
	require.False(t, d.Accepted)
	require.Equal(t, FilterOptIn, d.Filter)
	require.Empty(t, d.Replies)
}

func TestStandard_PassesWhenEverythingAgrees(t *testing.T) {
	p := newStandard(t, store.NewMemory(), clock.NewManual(base))
	msg := newMsg("s1", "halo, mau tanya bantuan")
	msg.Chat = &domain.Chat{IsKnownContact: false, DisplayName: "Ibu Ani"}
	require.True(t, p.Admit(context.Background(), msg).Accepted)
}
