package commands

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/donnabot/donna/internal/observability"
	"github.com/donnabot/donna/internal/reminders"
	"github.com/donnabot/donna/internal/skills"
)

const briefSkill = `---
name: morning-brief
triggers:
  - morning brief
scheduled: true
---
Summarise the day ahead.
`

func builtinFixture(t *testing.T) (*Registry, *reminders.MemoryStore) {
	t.Helper()
	logger := observability.NewLogger(observability.LogConfig{Output: io.Discard})

	dir := t.TempDir()
	skillDir := filepath.Join(dir, "morning-brief")
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(skillDir, skills.SkillFilename), []byte(briefSkill), 0o644); err != nil {
		t.Fatal(err)
	}
	skillReg := skills.NewRegistry(dir, logger)
	if err := skillReg.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	store := reminders.NewMemoryStore()
	reg := NewRegistry(logger)
	deps := Deps{
		ReloadSchedule: func(ctx context.Context) (int, []string, error) {
			return 4, []string{"row 7: not a schedule"}, nil
		},
		Status: func(ctx context.Context) Status {
			return Status{Version: "dev", Uptime: 90 * time.Second, JobsLoaded: 4, SkillsLoaded: 1}
		},
		Skills:    skillReg,
		Reminders: store,
		Location:  time.UTC,
		Now:       func() time.Time { return time.Date(2026, 1, 7, 10, 0, 0, 0, time.UTC) },
	}
	if err := RegisterBuiltins(reg, deps); err != nil {
		t.Fatal(err)
	}
	return reg, store
}

func run(t *testing.T, reg *Registry, name, args string) *Result {
	t.Helper()
	res, err := reg.Execute(context.Background(), &Invocation{
		Name: name, Args: args, ChannelID: "chan-1", UserID: "u1",
	})
	if err != nil {
		t.Fatalf("Execute /%s %s: %v", name, args, err)
	}
	return res
}

func TestReloadScheduleCommand(t *testing.T) {
	reg, _ := builtinFixture(t)
	res := run(t, reg, "reload-schedule", "")
	if !strings.Contains(res.Text, "4 jobs") || !strings.Contains(res.Text, "row 7") {
		t.Errorf("reload text = %q", res.Text)
	}

	// Alias works too.
	if res := run(t, reg, "reload", ""); !strings.Contains(res.Text, "4 jobs") {
		t.Errorf("alias text = %q", res.Text)
	}
}

func TestStatusCommand(t *testing.T) {
	reg, _ := builtinFixture(t)
	res := run(t, reg, "status", "")
	for _, want := range []string{"donna dev", "1m30s", "scheduled jobs: 4", "skills loaded: 1"} {
		if !strings.Contains(res.Text, want) {
			t.Errorf("status text %q missing %q", res.Text, want)
		}
	}
}

func TestSkillCommand(t *testing.T) {
	reg, _ := builtinFixture(t)

	res := run(t, reg, "skill", "list")
	if !strings.Contains(res.Text, "morning-brief") {
		t.Errorf("skill list = %q", res.Text)
	}

	res = run(t, reg, "skill", "morning-brief")
	if res.RunSkill != "morning-brief" || !res.Suppress {
		t.Errorf("skill run = %+v", res)
	}

	res = run(t, reg, "skill", "ghost")
	if res.Error == "" {
		t.Errorf("unknown skill gave no error: %+v", res)
	}
}

func TestRemindLifecycle(t *testing.T) {
	reg, store := builtinFixture(t)

	res := run(t, reg, "remind", "in 2 hours to stretch")
	if !strings.Contains(res.Text, "Reminder set") || !strings.Contains(res.Text, "in 2.0 hours") {
		t.Errorf("remind add = %q", res.Text)
	}

	pending, err := store.List(context.Background(), "u1")
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %v, %v", pending, err)
	}
	if pending[0].Task != "stretch" {
		t.Errorf("task = %q", pending[0].Task)
	}
	want := time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)
	if !pending[0].RunAt.Equal(want) {
		t.Errorf("run at = %v, want %v", pending[0].RunAt, want)
	}

	res = run(t, reg, "remind", "list")
	if !strings.Contains(res.Text, "stretch") {
		t.Errorf("remind list = %q", res.Text)
	}

	res = run(t, reg, "remind", "cancel "+pending[0].ID[:8])
	if !strings.Contains(res.Text, "Cancelled") {
		t.Errorf("remind cancel = %q", res.Text)
	}
	pending, _ = store.List(context.Background(), "u1")
	if len(pending) != 0 {
		t.Errorf("still pending after cancel: %v", pending)
	}
}

func TestRemindErrors(t *testing.T) {
	reg, _ := builtinFixture(t)

	if res := run(t, reg, "remind", ""); res.Error == "" {
		t.Error("bare /remind gave no usage error")
	}
	if res := run(t, reg, "remind", "in 2 hours stretch"); res.Error == "" {
		t.Error("missing separator gave no error")
	}
	if res := run(t, reg, "remind", "whenever to stretch"); res.Error == "" {
		t.Error("unparseable time gave no error")
	}
	if res := run(t, reg, "remind", "cancel deadbeef"); res.Error == "" {
		t.Error("unknown id gave no error")
	}
}
