package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/aigent/aigent/internal/cron"
	"github.com/aigent/aigent/internal/memory"
)

// registerCalendarTools wires calendar_add_event and remind_me against a
// single-user cron.Store (spec §4.9's native tool set).
func registerCalendarTools(r *Registry, store *cron.Store) {
	r.RegisterNative(memory.ToolSpec{
		Name:        "calendar_add_event",
		Description: "Add a one-shot calendar event at a specific time.",
		Params: []memory.ToolParam{
			{Name: "summary", Required: true, Description: "Short event summary."},
			{Name: "at", Required: true, Description: "Event time, RFC3339."},
		},
	}, func(ctx context.Context, args map[string]any) (string, error) {
		summary, _ := args["summary"].(string)
		at, _ := args["at"].(string)
		if summary == "" || at == "" {
			return "", fmt.Errorf("summary and at are required")
		}
		when, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return "", fmt.Errorf("invalid time %q: %w", at, err)
		}
		entry, err := store.CreateOnce(cron.KindEvent, summary, when)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("added event %q at %s (id=%d)", summary, entry.NextRun.Format(time.RFC3339), entry.ID), nil
	})

	r.RegisterNative(memory.ToolSpec{
		Name:        "remind_me",
		Description: "Schedule a reminder, either once at a specific time or recurring via a cron expression.",
		Params: []memory.ToolParam{
			{Name: "message", Required: true, Description: "Reminder text / memory-recall keyword."},
			{Name: "at", Required: false, Description: "One-shot time, RFC3339. Mutually exclusive with schedule."},
			{Name: "schedule", Required: false, Description: "Recurring cron expression. Mutually exclusive with at."},
		},
	}, func(ctx context.Context, args map[string]any) (string, error) {
		message, _ := args["message"].(string)
		at, _ := args["at"].(string)
		schedule, _ := args["schedule"].(string)
		if message == "" {
			return "", fmt.Errorf("message is required")
		}
		switch {
		case schedule != "":
			entry, err := store.CreateRecurring(cron.KindReminder, message, schedule, nil)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("scheduled recurring reminder %q (%s), next at %s (id=%d)", message, schedule, entry.NextRun.Format(time.RFC3339), entry.ID), nil
		case at != "":
			when, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return "", fmt.Errorf("invalid time %q: %w", at, err)
			}
			entry, err := store.CreateOnce(cron.KindReminder, message, when)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("scheduled reminder %q at %s (id=%d)", message, entry.NextRun.Format(time.RFC3339), entry.ID), nil
		default:
			return "", fmt.Errorf("one of at or schedule is required")
		}
	})
}
