package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestNightlyGateRequiresQuietWindow(t *testing.T) {
	s := New(Config{QuietWindowStartHour: 1, QuietWindowEndHour: 5}, Hooks{})
	noon := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	if s.nightlyGateOpen(noon) {
		t.Error("expected gate closed outside quiet window")
	}
	night := time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC)
	if !s.nightlyGateOpen(night) {
		t.Error("expected gate open inside quiet window with no prior run")
	}
}

func TestNightlyGateRespectsCooldown(t *testing.T) {
	s := New(Config{QuietWindowStartHour: 1, QuietWindowEndHour: 5, NightlyCooldown: 22 * time.Hour}, Hooks{})
	now := time.Date(2026, 1, 2, 2, 0, 0, 0, time.UTC)
	s.lastNightly = now.Add(-1 * time.Hour)
	if s.nightlyGateOpen(now) {
		t.Error("expected gate closed within cooldown of last run")
	}
	s.lastNightly = now.Add(-23 * time.Hour)
	if !s.nightlyGateOpen(now) {
		t.Error("expected gate open once cooldown has elapsed")
	}
}

func TestNightlyGateRespectsRecentConversation(t *testing.T) {
	now := time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC)
	s := New(Config{QuietWindowStartHour: 1, QuietWindowEndHour: 5}, Hooks{
		LastConversationAt: func() time.Time { return now.Add(-5 * time.Minute) },
	})
	if s.nightlyGateOpen(now) {
		t.Error("expected gate closed with conversation in the last 15 minutes")
	}

	s2 := New(Config{QuietWindowStartHour: 1, QuietWindowEndHour: 5}, Hooks{
		LastConversationAt: func() time.Time { return now.Add(-30 * time.Minute) },
	})
	if !s2.nightlyGateOpen(now) {
		t.Error("expected gate open with no recent conversation")
	}
}

func TestProactiveGateRespectsDNDAndCooldown(t *testing.T) {
	s := New(Config{DNDStartHour: 22, DNDEndHour: 7, ProactiveCooldown: time.Hour}, Hooks{})
	night := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	if s.proactiveGateOpen(night) {
		t.Error("expected gate closed during DND window")
	}

	day := time.Date(2026, 1, 1, 14, 0, 0, 0, time.UTC)
	if !s.proactiveGateOpen(day) {
		t.Error("expected gate open outside DND with no prior send")
	}
	s.lastProactive = day.Add(-10 * time.Minute)
	if s.proactiveGateOpen(day) {
		t.Error("expected gate closed within cooldown")
	}
}

func TestTriggerProactiveNowBypassesGateButSetsCooldown(t *testing.T) {
	called := false
	s := New(Config{DNDStartHour: 0, DNDEndHour: 24, ProactiveCooldown: time.Hour}, Hooks{
		RunProactive: func(ctx context.Context) error {
			called = true
			return nil
		},
	})
	if err := s.TriggerProactiveNow(context.Background()); err != nil {
		t.Fatalf("TriggerProactiveNow: %v", err)
	}
	if !called {
		t.Fatal("expected RunProactive hook invoked despite DND window")
	}
	if s.lastProactive.IsZero() {
		t.Fatal("expected lastProactive stamped after manual trigger")
	}
}

func TestStartAndStopCancelsAllTasks(t *testing.T) {
	passiveCalls := 0
	s := New(Config{ProactiveIntervalMinutes: 0}, Hooks{
		RunPassiveSleep: func(ctx context.Context) error {
			passiveCalls++
			return nil
		},
	})
	stop := s.Start(context.Background())
	stop()
	// Stop should return promptly (tickers are hours/minutes long, so no
	// tick fires before cancellation); verifying it doesn't hang is the point.
}
