package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/donnabot/donna/internal/reminders"
	"github.com/donnabot/donna/internal/skills"
)

// Status is a snapshot of the running process for the /status command.
type Status struct {
	Version          string
	Uptime           time.Duration
	ActiveChannels   int
	JobsLoaded       int
	SkillsLoaded     int
	PendingReminders int
}

// Deps carries the collaborators the built-in commands operate on.
type Deps struct {
	// ReloadSchedule re-reads the schedule document and the skills
	// directory; it returns the job count and any rejected-row messages.
	ReloadSchedule func(ctx context.Context) (int, []string, error)

	// Status produces the /status snapshot.
	Status func(ctx context.Context) Status

	// Skills resolves and lists skills for /skill.
	Skills *skills.Registry

	// Reminders backs the /remind subcommands.
	Reminders reminders.Store

	// Location is the timezone for reminder time parsing.
	Location *time.Location

	// Now is injectable for tests.
	Now func() time.Time
}

// RegisterBuiltins installs the in-chat control commands.
func RegisterBuiltins(reg *Registry, deps Deps) error {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}

	cmds := []*Command{
		{
			Name:        "reload-schedule",
			Aliases:     []string{"reload"},
			Description: "Re-read the schedule document and skills directory",
			Handler:     deps.reloadHandler,
		},
		{
			Name:        "status",
			Description: "Show dispatcher status",
			Handler:     deps.statusHandler,
		},
		{
			Name:        "skill",
			Description: "Run or list skills",
			Usage:       "/skill <name> | /skill list",
			AcceptsArgs: true,
			Handler:     deps.skillHandler,
		},
		{
			Name:        "remind",
			Description: "Set, list, or cancel reminders",
			Usage:       "/remind <when> to <task> | /remind list | /remind cancel <id>",
			AcceptsArgs: true,
			Handler:     deps.remindHandler,
		},
	}
	for _, cmd := range cmds {
		if err := reg.Register(cmd); err != nil {
			return err
		}
	}
	return nil
}

func (d Deps) reloadHandler(ctx context.Context, inv *Invocation) (*Result, error) {
	jobs, rejected, err := d.ReloadSchedule(ctx)
	if err != nil {
		return &Result{Error: fmt.Sprintf("Reload failed: %v", err)}, nil
	}
	text := fmt.Sprintf("Schedule reloaded: %d jobs.", jobs)
	if len(rejected) > 0 {
		text += fmt.Sprintf("\n%d rows rejected:\n• %s", len(rejected), strings.Join(rejected, "\n• "))
	}
	return &Result{Text: text}, nil
}

func (d Deps) statusHandler(ctx context.Context, inv *Invocation) (*Result, error) {
	s := d.Status(ctx)
	lines := []string{
		fmt.Sprintf("donna %s — up %s", s.Version, s.Uptime.Round(time.Second)),
		fmt.Sprintf("channels active: %d", s.ActiveChannels),
		fmt.Sprintf("scheduled jobs: %d", s.JobsLoaded),
		fmt.Sprintf("skills loaded: %d", s.SkillsLoaded),
		fmt.Sprintf("pending reminders: %d", s.PendingReminders),
	}
	return &Result{Text: strings.Join(lines, "\n")}, nil
}

func (d Deps) skillHandler(ctx context.Context, inv *Invocation) (*Result, error) {
	name := strings.TrimSpace(inv.Args)
	if name == "" || strings.EqualFold(name, "list") {
		all := d.Skills.List()
		if len(all) == 0 {
			return &Result{Text: "No skills loaded."}, nil
		}
		var b strings.Builder
		b.WriteString("Available skills:\n")
		for _, s := range all {
			fmt.Fprintf(&b, "• %s", s.Name)
			if len(s.Triggers) > 0 {
				fmt.Fprintf(&b, " (%s)", strings.Join(s.Triggers, ", "))
			}
			b.WriteString("\n")
		}
		return &Result{Text: strings.TrimRight(b.String(), "\n")}, nil
	}

	skill, ok := d.Skills.Lookup(name)
	if !ok {
		return &Result{Error: fmt.Sprintf("Unknown skill %q. Try /skill list.", name)}, nil
	}
	return &Result{RunSkill: skill.Name, Suppress: true}, nil
}

func (d Deps) remindHandler(ctx context.Context, inv *Invocation) (*Result, error) {
	head, rest := SplitArgs(inv.Args)
	switch head {
	case "":
		return &Result{Error: "Usage: /remind <when> to <task>, /remind list, /remind cancel <id>"}, nil
	case "list":
		return d.remindList(ctx, inv)
	case "cancel":
		return d.remindCancel(ctx, inv, rest)
	default:
		return d.remindAdd(ctx, inv, inv.Args)
	}
}

func (d Deps) remindAdd(ctx context.Context, inv *Invocation, args string) (*Result, error) {
	idx := strings.Index(args, " to ")
	if idx < 0 {
		return &Result{Error: "Say when, then what: /remind in 2 hours to take out the bins"}, nil
	}
	when := strings.TrimSpace(args[:idx])
	task := strings.TrimSpace(args[idx+len(" to "):])
	if task == "" {
		return &Result{Error: "The reminder needs a task after \"to\"."}, nil
	}

	now := d.Now()
	runAt, err := reminders.ParseWhen(when, now, d.Location)
	if err != nil {
		return &Result{Error: fmt.Sprintf("I couldn't read that time: %v", err)}, nil
	}

	id, err := d.Reminders.Create(ctx, inv.UserID, inv.ChannelID, task, runAt)
	if err != nil {
		return nil, fmt.Errorf("create reminder: %w", err)
	}
	return &Result{Text: fmt.Sprintf("Reminder set for %s (in %s). ID %s.",
		runAt.In(d.Location).Format("Mon 15:04"),
		reminders.FormatUntil(runAt.Sub(now)),
		shortID(id))}, nil
}

func (d Deps) remindList(ctx context.Context, inv *Invocation) (*Result, error) {
	pending, err := d.Reminders.List(ctx, inv.UserID)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	if len(pending) == 0 {
		return &Result{Text: "No pending reminders."}, nil
	}
	now := d.Now()
	var b strings.Builder
	b.WriteString("Pending reminders:\n")
	for _, r := range pending {
		fmt.Fprintf(&b, "• [%s] %s — %s (in %s)\n",
			shortID(r.ID), r.Task,
			r.RunAt.In(d.Location).Format("Mon 15:04"),
			reminders.FormatUntil(r.RunAt.Sub(now)))
	}
	return &Result{Text: strings.TrimRight(b.String(), "\n")}, nil
}

func (d Deps) remindCancel(ctx context.Context, inv *Invocation, idArg string) (*Result, error) {
	idArg = strings.TrimSpace(idArg)
	if idArg == "" {
		return &Result{Error: "Usage: /remind cancel <id>"}, nil
	}

	pending, err := d.Reminders.List(ctx, inv.UserID)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	var match *reminders.Reminder
	for _, r := range pending {
		if r.ID == idArg || strings.HasPrefix(r.ID, idArg) {
			if match != nil {
				return &Result{Error: fmt.Sprintf("ID %q is ambiguous.", idArg)}, nil
			}
			match = r
		}
	}
	if match == nil {
		return &Result{Error: fmt.Sprintf("No pending reminder matches %q.", idArg)}, nil
	}
	if err := d.Reminders.Delete(ctx, match.ID); err != nil {
		return nil, fmt.Errorf("cancel reminder: %w", err)
	}
	return &Result{Text: fmt.Sprintf("Cancelled: %s", match.Task)}, nil
}

// shortID trims a UUID to its first group for chat display.
func shortID(id string) string {
	if i := strings.Index(id, "-"); i > 0 {
		return id[:i]
	}
	return id
}
