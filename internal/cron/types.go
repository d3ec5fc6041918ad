// Package cron persists scheduled jobs to a JSON store and fires them from
// a single soonest-wake timer. A job either triggers an agent turn or
// delivers its message straight to a channel.
package cron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule describes when a job fires. Kind selects the active field:
// "at" uses AtMs, "every" uses EveryMs, "cron" uses Expr (5-field).
type Schedule struct {
	Kind    string  `json:"kind"`
	EveryMs *int64  `json:"everyMs"`
	AtMs    *int64  `json:"atMs"`
	Expr    *string `json:"expr"`
	TZ      *string `json:"tz"`
}

// Payload is what the job does when it fires.
type Payload struct {
	Kind    string  `json:"kind"`
	Message string  `json:"message"`
	Deliver bool    `json:"deliver"`
	Channel *string `json:"channel"`
	To      *string `json:"to"`
}

// PayloadAgentTurn runs the message through the agent loop.
const PayloadAgentTurn = "agent_turn"

// JobState is the run bookkeeping. Times are unix milliseconds.
type JobState struct {
	NextRunAtMs *int64  `json:"nextRunAtMs"`
	LastRunAtMs *int64  `json:"lastRunAtMs"`
	LastStatus  *string `json:"lastStatus"`
	LastError   *string `json:"lastError"`
}

// Job is one scheduled task.
type Job struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	Schedule       Schedule `json:"schedule"`
	Payload        Payload  `json:"payload"`
	State          JobState `json:"state"`
	CreatedAtMs    int64    `json:"createdAtMs"`
	UpdatedAtMs    int64    `json:"updatedAtMs"`
	DeleteAfterRun bool     `json:"deleteAfterRun"`
}

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Next returns the schedule's next fire time after now. The bool is false
// when the schedule will never fire again.
func (s Schedule) Next(now time.Time) (time.Time, bool, error) {
	switch s.Kind {
	case "at":
		if s.AtMs == nil {
			return time.Time{}, false, fmt.Errorf("at schedule missing timestamp")
		}
		at := time.UnixMilli(*s.AtMs)
		if at.Before(now) {
			return time.Time{}, false, nil
		}
		return at, true, nil
	case "every":
		if s.EveryMs == nil || *s.EveryMs <= 0 {
			return time.Time{}, false, fmt.Errorf("every schedule missing interval")
		}
		return now.Add(time.Duration(*s.EveryMs) * time.Millisecond), true, nil
	case "cron":
		if s.Expr == nil || *s.Expr == "" {
			return time.Time{}, false, fmt.Errorf("cron schedule missing expression")
		}
		sched, err := cronParser.Parse(*s.Expr)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("invalid cron expression: %w", err)
		}
		at := now
		if s.TZ != nil && *s.TZ != "" {
			loc, err := time.LoadLocation(*s.TZ)
			if err != nil {
				return time.Time{}, false, fmt.Errorf("invalid timezone: %w", err)
			}
			at = at.In(loc)
		}
		return sched.Next(at), true, nil
	default:
		return time.Time{}, false, fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
}

// Validate checks the schedule without computing a fire time.
func (s Schedule) Validate() error {
	_, _, err := s.Next(time.Now())
	return err
}

// Describe renders a schedule for human-readable listings.
func (s Schedule) Describe() string {
	switch s.Kind {
	case "at":
		if s.AtMs == nil {
			return "at N/A"
		}
		return "at " + formatMs(*s.AtMs)
	case "every":
		var ms int64
		if s.EveryMs != nil {
			ms = *s.EveryMs
		}
		secs := ms / 1000
		switch {
		case secs < 60:
			return fmt.Sprintf("every %ds", secs)
		case secs < 3600:
			return fmt.Sprintf("every %dm", secs/60)
		default:
			hours := secs / 3600
			mins := (secs % 3600) / 60
			if mins > 0 {
				return fmt.Sprintf("every %dh %dm", hours, mins)
			}
			return fmt.Sprintf("every %dh", hours)
		}
	case "cron":
		if s.Expr != nil && *s.Expr != "" {
			return *s.Expr
		}
		return "cron"
	}
	return s.Kind
}

func formatMs(ms int64) string {
	if ms == 0 {
		return "N/A"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }
