package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lukelzlz/nanobot/internal/cron"
)

// CronTool lets the agent manage scheduled tasks without shelling out.
// It delegates to the cron service so the tool and the scheduler share
// one store.
type CronTool struct {
	Service *cron.Service
}

type cronArgs struct {
	Operation    string `json:"operation" jsonschema:"enum=add,enum=list,enum=remove,description=The operation to perform"`
	Name         string `json:"name,omitempty" jsonschema:"description=Name/label for the task (required for add)"`
	ScheduleType string `json:"schedule_type,omitempty" jsonschema:"enum=at,enum=every,enum=cron,description=Schedule type: 'at' (one-time), 'every' (interval), or 'cron' (cron expression)"`
	At           string `json:"at,omitempty" jsonschema:"description=ISO datetime for one-time task (e.g. '2024-03-15T14:30:00')"`
	EverySeconds int64  `json:"every_seconds,omitempty" jsonschema:"description=Interval in seconds for 'every' schedule"`
	CronExpr     string `json:"cron_expr,omitempty" jsonschema:"description=Cron expression (e.g. '0 9 * * *' for 9 AM daily)"`
	Message      string `json:"message,omitempty" jsonschema:"description=Message to send when task runs"`
	Deliver      bool   `json:"deliver,omitempty" jsonschema:"description=Whether to deliver response to a channel"`
	Channel      string `json:"channel,omitempty" jsonschema:"description=Channel to deliver to (e.g. 'telegram', 'whatsapp')"`
	To           string `json:"to,omitempty" jsonschema:"description=Recipient ID (chat_id or phone number)"`
	JobID        string `json:"job_id,omitempty" jsonschema:"description=Job ID to remove (required for remove operation)"`
}

func (t *CronTool) Name() string { return "cron" }

func (t *CronTool) Description() string {
	return `Manage scheduled tasks and reminders.

Supported operations:
- add: Create a new scheduled task
- list: List all scheduled tasks
- remove: Remove a scheduled task by ID

For reminders, use 'at' schedule type. For recurring tasks, use 'every' or 'cron'.`
}

func (t *CronTool) Parameters() json.RawMessage {
	return reflectSchema(cronArgs{})
}

func (t *CronTool) Execute(_ context.Context, args map[string]any) string {
	var a cronArgs
	if err := decodeArgs(args, &a); err != nil {
		return errorf("invalid arguments: %v", err)
	}
	switch a.Operation {
	case "add":
		return t.addJob(a)
	case "list":
		return t.listJobs()
	case "remove":
		return t.removeJob(a)
	default:
		return fmt.Sprintf("Error: Unknown operation '%s'. Use 'add', 'list', or 'remove'.", a.Operation)
	}
}

func (t *CronTool) addJob(a cronArgs) string {
	kind := a.ScheduleType
	if kind == "" {
		kind = "at"
	}
	schedule := cron.Schedule{Kind: kind}

	switch kind {
	case "at":
		if a.At == "" {
			return "Error: 'at' parameter required for 'at' schedule type"
		}
		ts, err := parseISOTime(a.At)
		if err != nil {
			return fmt.Sprintf("Error: Invalid datetime format '%s'. Use ISO format like '2024-03-15T14:30:00'", a.At)
		}
		ms := ts.UnixMilli()
		schedule.AtMs = &ms
	case "every":
		if a.EverySeconds <= 0 {
			return "Error: 'every_seconds' must be a positive integer"
		}
		ms := a.EverySeconds * 1000
		schedule.EveryMs = &ms
	case "cron":
		if a.CronExpr == "" {
			return "Error: 'cron_expr' required for 'cron' schedule type"
		}
		expr := a.CronExpr
		schedule.Expr = &expr
	}

	job, err := t.Service.AddJob(a.Name, schedule, a.Message, a.Deliver, a.Channel, a.To)
	if err != nil {
		return errorf("%v", err)
	}

	nextRun := "N/A"
	if job.State.NextRunAtMs != nil {
		nextRun = time.UnixMilli(*job.State.NextRunAtMs).Format("2006-01-02 15:04:05")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Created scheduled task '%s' (ID: %s)\n", a.Name, job.ID)
	fmt.Fprintf(&b, "  Schedule: %s\n", schedule.Describe())
	fmt.Fprintf(&b, "  Next run: %s\n", nextRun)
	if a.Deliver && a.Channel != "" && a.To != "" {
		fmt.Fprintf(&b, "  Will deliver to: %s:%s", a.Channel, a.To)
	}
	return b.String()
}

func (t *CronTool) listJobs() string {
	jobs, err := t.Service.ListJobs(true)
	if err != nil {
		return errorf("%v", err)
	}
	if len(jobs) == 0 {
		return "No scheduled tasks."
	}

	lines := []string{"Scheduled Tasks:\n"}
	for _, job := range jobs {
		status := "enabled"
		if !job.Enabled {
			status = "disabled"
		}
		lines = append(lines, fmt.Sprintf("  [%s] %s (ID: %s)", status, job.Name, job.ID))
		lines = append(lines, fmt.Sprintf("    Schedule: %s", job.Schedule.Describe()))
		lines = append(lines, fmt.Sprintf("    Next run: %s", formatJobMs(job.State.NextRunAtMs)))
		if job.State.LastRunAtMs != nil {
			lines = append(lines, fmt.Sprintf("    Last run: %s", formatJobMs(job.State.LastRunAtMs)))
		}
		if job.Payload.Message != "" {
			msg := job.Payload.Message
			if len(msg) > 50 {
				msg = msg[:50] + "..."
			}
			lines = append(lines, fmt.Sprintf("    Message: %s", msg))
		}
		if job.Payload.Deliver && job.Payload.Channel != nil && job.Payload.To != nil {
			lines = append(lines, fmt.Sprintf("    Delivers to: %s:%s", *job.Payload.Channel, *job.Payload.To))
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func (t *CronTool) removeJob(a cronArgs) string {
	if a.JobID == "" {
		return "Error: 'job_id' parameter required for remove operation"
	}
	removed, err := t.Service.RemoveJob(a.JobID)
	if err != nil {
		return errorf("%v", err)
	}
	if !removed {
		return fmt.Sprintf("Error: Job '%s' not found", a.JobID)
	}
	return fmt.Sprintf("Removed scheduled task %s", a.JobID)
}

func formatJobMs(ms *int64) string {
	if ms == nil || *ms == 0 {
		return "N/A"
	}
	return time.UnixMilli(*ms).Format("2006-01-02 15:04:05")
}

// parseISOTime accepts the ISO-8601 shapes users actually type: with or
// without seconds, with or without a zone. Zoneless times are local.
func parseISOTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if layout == time.RFC3339 {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, nil
			}
			continue
		}
		if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", s)
}
