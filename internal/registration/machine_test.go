package registration

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
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

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type failingRecords struct {
	store.Registrations
	err   error
	calls int
}

func (f *failingRecords) SaveRegistration(ctx context.Context, rec domain.RegistrationRecord) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.Registrations.SaveRegistration(ctx, rec)
}

type brokenSessions struct{ err error }

func (b brokenSessions) Get(context.Context, string) (*domain.RegistrationSession, error) {
	return nil, b.err
}
func (b brokenSessions) Put(context.Context, domain.RegistrationSession) error { return b.err }
func (b brokenSessions) Delete(context.Context, string) error { return b.err }

// flakyDelete fails the first failures Delete calls.
type flakyDelete struct {
	*MemorySessionStore
	failures int
}

func (f *flakyDelete) Delete(ctx context.Context, sender string) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("session store unavailable")
	}
	return f.MemorySessionStore.Delete(ctx, sender)
}

func newMachine(t *testing.T, records store.Registrations, v Validators) (*Machine, *MemorySessionStore, *metrics.Metrics) {
	t.Helper()
	sessions := NewMemorySessionStore()
	m := metrics.New(prometheus.NewRegistry())
	mc, err := NewMachine(sessions, records, clock.NewManual(base), Options{
		Validators: v,
		Logger:     slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		Metrics:    m,
	})
	require.NoError(t, err)
	return mc, sessions, m
}

func TestNewMachine_Validates(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	mem := store.NewMemory()
	_, err := NewMachine(nil, mem, clock.System{}, Options{Logger: logger})
	require.Error(t, err)
	_, err = NewMachine(NewMemorySessionStore(), nil, clock.System{}, Options{Logger: logger})
	require.Error(t, err)
	_, err = NewMachine(NewMemorySessionStore(), mem, nil, Options{Logger: logger})
	require.Error(t, err)
	_, err = NewMachine(NewMemorySessionStore(), mem, clock.System{}, Options{})
	require.Error(t, err)
}

func TestMachine_FullRegistration(t *testing.T) {
	ctx := context.Background()
	records := store.NewMemory()
	mc, sessions, m := newMachine(t, records, nil)

	reply, err := mc.Start(ctx, "s1", "ProgramX")
	require.NoError(t, err)
	require.Contains(t, reply, "ProgramX")
	require.Contains(t, reply, "nama lengkap")

	active, err := mc.Active(ctx, "s1")
	require.NoError(t, err)
	require.True(t, active)

	steps := []struct {
		input string
		step  domain.Step
		want  string
	}{
		{"Jane Doe", domain.StepNIK, "Oke Jane Doe, sekarang NIK-nya berapa?"},
		{"1234567890123456", domain.StepAddress, "alamat lengkap"},
		{"Jl. A", domain.StepPhone, "Nomor HP"},
		{"08123", domain.StepConfirm, "Nama: Jane Doe\nNIK: 1234567890123456\nAlamat: Jl. A\nHP: 08123"},
	}
	for _, st := range steps {
		reply, err := mc.Handle(ctx, "s1", st.input)
		require.NoError(t, err)
		require.Contains(t, reply, st.want)
		s, err := sessions.Get(ctx, "s1")
		require.NoError(t, err)
		require.Equal(t, st.step, s.Step)
	}

	reply, err = mc.Handle(ctx, "s1", "Ya")
	require.NoError(t, err)
	require.Contains(t, reply, "ID Registrasi: REG-")
	require.Contains(t, reply, "08123")

	active, err = mc.Active(ctx, "s1")
	require.NoError(t, err)
	require.False(t, active)

	recs, err := records.ListRecentRegistrations(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	rec := recs[0]
	require.Equal(t, "s1", rec.Sender)
	require.Equal(t, "ProgramX", rec.Program)
	require.Equal(t, "Jane Doe", rec.Name)
	require.Equal(t, "1234567890123456", rec.NIK)
	require.Equal(t, "Jl. A", rec.Address)
	require.Equal(t, "08123", rec.Phone)
	require.Equal(t, domain.RegistrationStatusPending, rec.Status)
	require.Equal(t, base, rec.CreatedAt)

	require.Equal(t, 1.0, testutil.ToFloat64(m.RegistrationsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RegistrationsSubmitted))
}

func TestMachine_CancelAtConfirm(t *testing.T) {
	ctx := context.Background()
	records := store.NewMemory()
	mc, _, m := newMachine(t, records, nil)

	_, err := mc.Start(ctx, "s1", "PKH")
	require.NoError(t, err)
	for _, in := range []string{"Budi", "123", "Jl. B", "0812"} {
		_, err := mc.Handle(ctx, "s1", in)
		require.NoError(t, err)
	}

	reply, err := mc.Handle(ctx, "s1", "hmm")
	require.NoError(t, err)
	require.Equal(t, replyConfirmAgain, reply)

	reply, err = mc.Handle(ctx, "s1", "BATAL")
	require.NoError(t, err)
	require.Equal(t, replyCancelled, reply)

	active, err := mc.Active(ctx, "s1")
	require.NoError(t, err)
	require.False(t, active)
	n, err := records.CountRegistrations(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, 1.0, testutil.ToFloat64(m.RegistrationsCancelled))
}

func TestMachine_SaveFailureKeepsConfirm(t *testing.T) {
	ctx := context.Background()
	records := &failingRecords{Registrations: store.NewMemory(), err: errors.New("disk full")}
	mc, sessions, _ := newMachine(t, records, nil)

	_, err := mc.Start(ctx, "s1", "PKH")
	require.NoError(t, err)
	for _, in := range []string{"Budi", "123", "Jl. B", "0812"} {
		_, err := mc.Handle(ctx, "s1", in)
		require.NoError(t, err)
	}

	reply, err := mc.Handle(ctx, "s1", "ya")
	require.NoError(t, err)
	require.Equal(t, replySaveFailed, reply)
	s, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, s)
	require.Equal(t, domain.StepConfirm, s.Step)

	records.err = nil
	reply, err = mc.Handle(ctx, "s1", "yes")
	require.NoError(t, err)
	require.Contains(t, reply, "ID Registrasi")
	require.Equal(t, 2, records.calls)
	require.Zero(t, sessions.Len())
}

func TestMachine_RepeatedConfirmAfterDeleteFailure(t *testing.T) {
	ctx := context.Background()
	records := store.NewMemory()
	sessions := &flakyDelete{MemorySessionStore: NewMemorySessionStore(), failures: 1}
	m := metrics.New(prometheus.NewRegistry())
	mc, err := NewMachine(sessions, records, clock.NewManual(base), Options{
		Logger:  slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		Metrics: m,
	})
	require.NoError(t, err)

	_, err = mc.Start(ctx, "s1", "PKH")
	require.NoError(t, err)
	for _, in := range []string{"Budi", "123", "Jl. B", "0812"} {
		_, err := mc.Handle(ctx, "s1", in)
		require.NoError(t, err)
	}
	s, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, domain.StepConfirm, s.Step)
	require.NotEmpty(t, s.RecordID)
	recordID := s.RecordID

	first, err := mc.Handle(ctx, "s1", "ya")
	require.NoError(t, err)
	require.Contains(t, first, "ID Registrasi: "+recordID)
	active, err := mc.Active(ctx, "s1")
	require.NoError(t, err)
	require.True(t, active, "session survives the failed delete")

	second, err := mc.Handle(ctx, "s1", "ya")
	require.NoError(t, err)
	require.Equal(t, first, second)

	n, err := records.CountRegistrations(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	recs, err := records.ListRecentRegistrations(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, recordID, recs[0].ID)
	require.Zero(t, sessions.Len())
	require.Equal(t, 1.0, testutil.ToFloat64(m.RegistrationsSubmitted))
}

func TestMachine_StrictValidation(t *testing.T) {
	ctx := context.Background()
	mc, sessions, _ := newMachine(t, store.NewMemory(), ValidatorsFor(config.ValidationStrict))

	_, err := mc.Start(ctx, "s1", "PKH")
	require.NoError(t, err)
	_, err = mc.Handle(ctx, "s1", "Budi")
	require.NoError(t, err)

	reply, err := mc.Handle(ctx, "s1", "12345")
	require.NoError(t, err)
	require.Contains(t, reply, "16 digit")
	s, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, domain.StepNIK, s.Step)
	require.Empty(t, s.Collected.NIK)

	_, err = mc.Handle(ctx, "s1", "1234567890123456")
	require.NoError(t, err)
	_, err = mc.Handle(ctx, "s1", "Jl. C")
	require.NoError(t, err)

	reply, err = mc.Handle(ctx, "s1", "0812-abc")
	require.NoError(t, err)
	require.Contains(t, reply, "8 sampai 15 digit")

	_, err = mc.Handle(ctx, "s1", "+628123456789")
	require.NoError(t, err)
	s, err = sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, domain.StepConfirm, s.Step)
}

func TestMachine_HandleWithoutSession(t *testing.T) {
	mc, _, _ := newMachine(t, store.NewMemory(), nil)
	_, err := mc.Handle(context.Background(), "nobody", "halo")
	require.Error(t, err)
}

func TestMachine_StartRequiresProgram(t *testing.T) {
	mc, _, _ := newMachine(t, store.NewMemory(), nil)
	_, err := mc.Start(context.Background(), "s1", "  ")
	require.Error(t, err)
}

func TestMachine_SessionStoreErrors(t *testing.T) {
	boom := errors.New("boom")
	mc, err := NewMachine(brokenSessions{err: boom}, store.NewMemory(), clock.NewManual(base), Options{
		Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	})
	require.NoError(t, err)

	_, err = mc.Active(context.Background(), "s1")
	require.ErrorIs(t, err, boom)
	_, err = mc.Start(context.Background(), "s1", "PKH")
	require.ErrorIs(t, err, boom)
	_, err = mc.Handle(context.Background(), "s1", "x")
	require.ErrorIs(t, err, boom)
}

func TestAdvance(t *testing.T) {
	start := domain.RegistrationSession{Sender: "s1", Step: domain.StepName, Program: "PKH", StartedAt: base}

	tests := []struct {
		name    string
		session domain.RegistrationSession
		input   string
		outcome Outcome
		step    domain.Step
	}{
		{"empty input re-prompts", start, "   ", Continue, domain.StepName},
		{"name advances", start, " Siti ", Continue, domain.StepNIK},
		{"confirm yes", withStep(start, domain.StepConfirm), "YES", Submit, domain.StepConfirm},
		{"confirm cancel", withStep(start, domain.StepConfirm), "cancel", Cancel, domain.StepConfirm},
		{"cancel word mid-form is data", withStep(start, domain.StepAddress), "batal", Continue, domain.StepPhone},
		{"unknown step restarts", withStep(start, "bogus"), "x", Continue, domain.StepName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Advance(tt.session, tt.input, Validators{})
			require.Equal(t, tt.outcome, got.Outcome)
			require.Equal(t, tt.step, got.Session.Step)
		})
	}

	stale := withStep(start, "bogus")
	stale.RecordID = "REG-1"
	require.Empty(t, Advance(stale, "x", nil).Session.RecordID, "restart drops the record id")

	got := Advance(start, " Siti ", nil)
	require.Equal(t, "Siti", got.Session.Collected.Name)
	require.Equal(t, domain.StepName, start.Step, "input session is not mutated")
}

func withStep(s domain.RegistrationSession, step domain.Step) domain.RegistrationSession {
	s.Step = step
	return s
}

func TestValidators(t *testing.T) {
	require.Empty(t, ValidatorsFor(config.ValidationPermissive))
	strict := ValidatorsFor(config.ValidationStrict)
	require.Empty(t, strict.check(domain.StepNIK, "3201234567890001"))
	require.NotEmpty(t, strict.check(domain.StepNIK, "320123456789000"))
	require.NotEmpty(t, strict.check(domain.StepNIK, "32012345678900０1"))
	require.Empty(t, strict.check(domain.StepPhone, "08123456"))
	require.Empty(t, strict.check(domain.StepPhone, "+6281234567890"))
	require.NotEmpty(t, strict.check(domain.StepPhone, "0812345"))
	require.NotEmpty(t, strict.check(domain.StepPhone, "++08123456"))
	require.Empty(t, strict.check(domain.StepName, "anything"))
}
