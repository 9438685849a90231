package session

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trade-risk-engine/internal/budget"
	"trade-risk-engine/internal/risk"
)

type recordingJournal struct {
	sessions int
	shots    int
	exits    int
}

func (j *recordingJournal) RecordSession(ctx context.Context, s *Session) error {
	j.sessions++
	return nil
}

func (j *recordingJournal) RecordShot(ctx context.Context, sessionID string, shot budget.Shot) error {
	j.shots++
	return nil
}

func (j *recordingJournal) RecordExit(ctx context.Context, sessionID string, exit ExitRecord) error {
	j.exits++
	return nil
}

type fakeSnapshots struct {
	saved   map[string]bool
	deleted map[string]bool
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{saved: map[string]bool{}, deleted: map[string]bool{}}
}

func (f *fakeSnapshots) SaveSession(ctx context.Context, s *Session) error {
	f.saved[s.ID] = true
	return nil
}

func (f *fakeSnapshots) DeleteSession(ctx context.Context, sessionID string) error {
	f.deleted[sessionID] = true
	return nil
}

func testManager(journal Journal, snapshots SnapshotStore) *Manager {
	engine := risk.NewEngine(risk.DefaultConfig(), zerolog.Nop())
	allocator := budget.NewAllocator(zerolog.Nop())
	return NewManager(engine, allocator, zerolog.Nop(), journal, snapshots)
}

func longParams() CreateParams {
	return CreateParams{
		Symbol:            "BTCUSDT",
		Direction:         risk.Long,
		Timeframe:         "4h",
		AccountBalance:    100000,
		StructuralSupport: 94000,
		RiskCapPct:        2.0,
		MaxShots:          3,
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	m := testManager(nil, nil)

	s, err := m.CreateSession(ctx, longParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.Status != StatusPending || s.Phase != PhaseEntry {
		t.Fatalf("fresh session should be pending/entry, got %s/%s", s.Status, s.Phase)
	}

	// No override: stop derives from the structural level minus 0.2 ATR.
	shot, err := m.TakeShot(ctx, s.ID, 95000, 600, 0)
	if err != nil {
		t.Fatalf("shot: %v", err)
	}
	if math.Abs(shot.StopPrice-93880) > 1e-9 {
		t.Errorf("derived stop = %f, want 93880", shot.StopPrice)
	}
	if s.Status != StatusActive {
		t.Errorf("first shot should activate the session, got %s", s.Status)
	}
	if len(s.Targets) != 3 {
		t.Fatalf("default target ladder should have 3 rungs, got %d", len(s.Targets))
	}
	if math.Abs(s.Targets[0].Price-97850) > 1e-6 {
		t.Errorf("first default target = %f, want 97850 (+3%%)", s.Targets[0].Price)
	}
	if s.Levels == nil {
		t.Fatal("shot should build the working risk snapshot")
	}
	primary, ok := s.Levels.PrimaryStop()
	if !ok || math.Abs(primary.Price-93880) > 1e-9 {
		t.Errorf("snapshot primary stop = %+v, want 93880", primary)
	}

	// Quiet bar inside the entry window.
	upd, err := m.UpdateSession(ctx, s.ID, UpdateInput{CurrentPrice: 95500, CurrentBar: 5})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if upd.ExitSignal {
		t.Errorf("quiet bar should not signal, got %q", upd.ExitReason)
	}
	if s.Phase != PhaseEntry {
		t.Error("phase should still be entry before bar 10")
	}

	// Bar 10 flips to management and closes the entry window.
	if _, err := m.UpdateSession(ctx, s.ID, UpdateInput{CurrentPrice: 95600, CurrentBar: 10}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if s.Phase != PhaseManagement {
		t.Errorf("bar 10 should enter management, got %s", s.Phase)
	}
	if _, err := m.TakeShot(ctx, s.ID, 94500, 600, 0); !errors.Is(err, ErrSessionInactive) {
		t.Errorf("management phase should refuse new shots, got %v", err)
	}
}

func TestPartialExitThenClose(t *testing.T) {
	ctx := context.Background()
	m := testManager(nil, nil)

	s, _ := m.CreateSession(ctx, longParams())
	m.TakeShot(ctx, s.ID, 95000, 600, 0)
	sizeBefore := s.RemainingSize

	rec, err := m.ExecuteExit(ctx, s.ID, 97850, string(ExitTargetHit), 33)
	if err != nil {
		t.Fatalf("partial exit: %v", err)
	}
	if rec.RealizedPnl <= 0 {
		t.Errorf("exit above entry should realize profit, got %f", rec.RealizedPnl)
	}
	if s.Status != StatusPartial {
		t.Errorf("partial exit should leave the session partial, got %s", s.Status)
	}
	if s.TargetsHit != 1 {
		t.Errorf("target exit should count, got %d", s.TargetsHit)
	}
	want := sizeBefore * 0.67
	if math.Abs(s.RemainingSize-want) > 1e-9 {
		t.Errorf("remaining size = %f, want %f", s.RemainingSize, want)
	}

	if _, err := m.CloseSession(ctx, s.ID, 98000); err != nil {
		t.Fatalf("close: %v", err)
	}
	if s.Status != StatusClosed || s.ClosedAt == nil {
		t.Errorf("closed session should be terminal with a close time, got %s", s.Status)
	}
	if s.RemainingSize > remainingEpsilon {
		t.Errorf("close should zero the position, remaining %f", s.RemainingSize)
	}
	if _, err := m.UpdateSession(ctx, s.ID, UpdateInput{CurrentPrice: 98000, CurrentBar: 12}); !errors.Is(err, ErrSessionInactive) {
		t.Errorf("closed session should refuse updates, got %v", err)
	}
}

func TestSafetyNetDisplacesSignal(t *testing.T) {
	ctx := context.Background()
	m := testManager(nil, nil)

	s, _ := m.CreateSession(ctx, longParams())
	m.TakeShot(ctx, s.ID, 95000, 600, 0)

	// 5.3% under the average entry: the safety net wins even though an
	// opposing signal arrives on the same bar.
	upd, err := m.UpdateSession(ctx, s.ID, UpdateInput{
		CurrentPrice:   90000,
		CurrentBar:     6,
		OpposingSignal: true,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !upd.ExitSignal || upd.ExitReason != string(ExitSafetyNet) {
		t.Fatalf("expected safety net exit, got %q", upd.ExitReason)
	}
	if upd.ExitPercentage != 100 {
		t.Errorf("safety net exits in full, got %f%%", upd.ExitPercentage)
	}
}

func TestSessionLevelSignals(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name       string
		in         UpdateInput
		wantReason ExitReason
		wantPct    float64
	}{
		{"opposing", UpdateInput{CurrentPrice: 94800, CurrentBar: 4, OpposingSignal: true}, ExitOppositeSignal, 100},
		{"exhaustion", UpdateInput{CurrentPrice: 94800, CurrentBar: 4, MomentumExhaustion: true}, ExitMomentumExhaust, 50},
		{"climax", UpdateInput{CurrentPrice: 94800, CurrentBar: 4, VolumeClimax: true}, ExitVolumeClimax, 50},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := testManager(nil, nil)
			s, _ := m.CreateSession(ctx, longParams())
			m.TakeShot(ctx, s.ID, 95000, 600, 0)

			upd, err := m.UpdateSession(ctx, s.ID, tc.in)
			if err != nil {
				t.Fatalf("update: %v", err)
			}
			if !upd.ExitSignal || upd.ExitReason != string(tc.wantReason) {
				t.Fatalf("expected %s, got %q", tc.wantReason, upd.ExitReason)
			}
			if upd.ExitPercentage != tc.wantPct {
				t.Errorf("exit pct = %f, want %f", upd.ExitPercentage, tc.wantPct)
			}
		})
	}
}

func TestExitPriceFallsBackToAverageEntry(t *testing.T) {
	ctx := context.Background()
	m := testManager(nil, nil)

	s, _ := m.CreateSession(ctx, longParams())
	m.TakeShot(ctx, s.ID, 95000, 600, 0)

	rec, err := m.ExecuteExit(ctx, s.ID, 0, "whatever", 50)
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	if math.Abs(rec.ExitPrice-95000) > 1e-9 {
		t.Errorf("zero exit price should fall back to the average entry, got %f", rec.ExitPrice)
	}
	if rec.RealizedPnl != 0 {
		t.Errorf("exiting at the entry should realize nothing, got %f", rec.RealizedPnl)
	}
	if rec.Reason != ExitManual {
		t.Errorf("unknown reason should coerce to manual, got %s", rec.Reason)
	}
}

func TestSessionExpiry(t *testing.T) {
	ctx := context.Background()
	m := testManager(nil, nil)

	p := longParams()
	p.TimeoutHours = 1e-9
	s, _ := m.CreateSession(ctx, p)

	time.Sleep(2 * time.Millisecond)

	if _, err := m.TakeShot(ctx, s.ID, 95000, 600, 0); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expired session should refuse shots, got %v", err)
	}
	got, err := m.GetSession(s.ID)
	if err != nil {
		t.Fatalf("expired sessions are still readable: %v", err)
	}
	if got.Status != StatusExpired || got.ClosedAt == nil {
		t.Errorf("expiry should be recorded on access, got %s", got.Status)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	ctx := context.Background()
	m := testManager(nil, nil)

	p := longParams()
	p.Symbol = ""
	if _, err := m.CreateSession(ctx, p); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("missing symbol should be rejected, got %v", err)
	}

	p = longParams()
	p.AccountBalance = 0
	if _, err := m.CreateSession(ctx, p); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("zero balance should be rejected, got %v", err)
	}

	p = longParams()
	p.StructuralSupport = 0
	if _, err := m.CreateSession(ctx, p); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("zero structural level should be rejected, got %v", err)
	}

	p = longParams()
	p.MaxShots = 9
	if _, err := m.CreateSession(ctx, p); !errors.Is(err, budget.ErrInvalidBudget) {
		t.Errorf("unscheduled shot count should surface the budget error, got %v", err)
	}
}

func TestJournalAndSnapshots(t *testing.T) {
	ctx := context.Background()
	journal := &recordingJournal{}
	snaps := newFakeSnapshots()
	m := testManager(journal, snaps)

	s, _ := m.CreateSession(ctx, longParams())
	m.TakeShot(ctx, s.ID, 95000, 600, 0)
	m.CloseSession(ctx, s.ID, 96000)

	if journal.shots != 1 {
		t.Errorf("journal recorded %d shots, want 1", journal.shots)
	}
	if journal.exits != 1 {
		t.Errorf("journal recorded %d exits, want 1", journal.exits)
	}
	if journal.sessions == 0 {
		t.Error("journal should record session state changes")
	}
	if !snaps.saved[s.ID] {
		t.Error("open session should be snapshotted")
	}
	if !snaps.deleted[s.ID] {
		t.Error("terminal session should drop its snapshot")
	}
}

func TestActiveSessions(t *testing.T) {
	ctx := context.Background()
	m := testManager(nil, nil)

	a, _ := m.CreateSession(ctx, longParams())
	b, _ := m.CreateSession(ctx, longParams())
	m.TakeShot(ctx, b.ID, 95000, 600, 0)
	m.CloseSession(ctx, b.ID, 95000)

	active := m.ActiveSessions()
	if len(active) != 1 || active[0].ID != a.ID {
		t.Errorf("expected only the pending session to remain active, got %d", len(active))
	}

	sum, err := m.Summary(b.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Status != StatusClosed || sum.ShotsTaken != 1 || sum.PartialExits != 1 {
		t.Errorf("summary mismatch: %+v", sum)
	}
}

func TestSessionGuardingLineArmsAndBreaks(t *testing.T) {
	ctx := context.Background()
	m := testManager(nil, nil)

	s, err := m.CreateSession(ctx, longParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.TakeShot(ctx, s.ID, 95000, 600, 0); err != nil {
		t.Fatalf("shot: %v", err)
	}

	// Lows rise 100/bar, so the fitted slope is 100 and the intercept sits
	// a 0.3% buffer under the lowest low.
	lows := make([]float64, 10)
	highs := make([]float64, 10)
	for i := range lows {
		lows[i] = 94000 + 100*float64(i)
		highs[i] = 94400 + 100*float64(i)
	}

	update, err := m.UpdateSession(ctx, s.ID, UpdateInput{
		CurrentPrice: 95200,
		CurrentBar:   1,
		RecentLows:   lows,
		RecentHighs:  highs,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if s.Guarding == nil || s.Levels.Guarding == nil {
		t.Fatal("swing session should arm the guarding line on the first update")
	}
	if math.Abs(s.Guarding.Slope-100) > 1e-6 {
		t.Errorf("expected fitted slope 100/bar, got %f", s.Guarding.Slope)
	}
	wantIntercept := 94000 * (1 - 0.3/100)
	if math.Abs(s.Guarding.Intercept-wantIntercept) > 1e-6 {
		t.Errorf("expected intercept %f, got %f", wantIntercept, s.Guarding.Intercept)
	}
	if update.GuardingActive {
		t.Error("guarding line should be inert before its activation bar")
	}
	if update.ExitSignal {
		t.Errorf("unexpected exit signal before activation: %s", update.ExitReason)
	}

	// Bar 25: level = intercept + 100 * (25 - 10) = 95218, above price.
	update, err = m.UpdateSession(ctx, s.ID, UpdateInput{
		CurrentPrice: 95000,
		CurrentBar:   25,
		RecentLows:   lows,
		RecentHighs:  highs,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !update.GuardingActive {
		t.Fatal("guarding line should be active past the activation bar")
	}
	wantLevel := wantIntercept + 100*15
	if math.Abs(update.GuardingLevel-wantLevel) > 1e-6 {
		t.Errorf("expected guarding level %f, got %f", wantLevel, update.GuardingLevel)
	}
	if math.Abs(s.GuardingLevel-wantLevel) > 1e-6 {
		t.Errorf("session should track the guarding level, got %f", s.GuardingLevel)
	}
	if !update.GuardingBroken {
		t.Fatal("price below the line should break the guarding line")
	}
	if !update.ExitSignal || update.ExitPercentage != 100 {
		t.Errorf("guarding break should force a full exit, got signal=%v pct=%f",
			update.ExitSignal, update.ExitPercentage)
	}
	if update.ExitReason != string(ExitGuardingBroken) {
		t.Errorf("expected exit reason %s, got %s", ExitGuardingBroken, update.ExitReason)
	}

	record, err := m.ExecuteExit(ctx, s.ID, 95000, update.ExitReason, update.ExitPercentage)
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	if record.Reason != ExitGuardingBroken {
		t.Errorf("expected journaled reason %s, got %s", ExitGuardingBroken, record.Reason)
	}
	got, _ := m.GetSession(s.ID)
	if got.Status != StatusClosed {
		t.Errorf("expected closed session, got %s", got.Status)
	}
}

func TestSessionGuardingOnlyForSwingTimeframes(t *testing.T) {
	ctx := context.Background()
	m := testManager(nil, nil)

	p := longParams()
	p.Timeframe = "1h"
	s, err := m.CreateSession(ctx, p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.TakeShot(ctx, s.ID, 95000, 600, 0); err != nil {
		t.Fatalf("shot: %v", err)
	}

	update, err := m.UpdateSession(ctx, s.ID, UpdateInput{
		CurrentPrice: 95200,
		CurrentBar:   25,
		RecentLows:   []float64{94500, 94600, 94700, 94800, 94900},
		RecentHighs:  []float64{95100, 95200, 95300, 95400, 95500},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if s.Guarding != nil || s.Levels.Guarding != nil {
		t.Error("intraday session should not arm the guarding line")
	}
	if update.GuardingActive || update.GuardingBroken {
		t.Error("guarding checks should stay off for intraday timeframes")
	}
}
