package skills

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/donnabot/donna/internal/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Output: io.Discard})
}

func writeSkill(t *testing.T, dir, name, doc string) {
	t.Helper()
	skillDir := filepath.Join(dir, name)
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(skillDir, SkillFilename), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
}

func loadedRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	writeSkill(t, dir, "a-news", "---\nname: a-news\ntriggers: [news, headlines]\nconversational: true\n---\nFetch the news.")
	writeSkill(t, dir, "b-weather", "---\nname: b-weather\ntriggers: [weather, news]\nconversational: true\ndata_fetcher: weather_api\n---\nForecast.")
	writeSkill(t, dir, "c-digest", "---\nname: c-digest\ntriggers: [digest]\nscheduled: true\n---\nDaily digest.")
	writeSkill(t, dir, "broken", "---\nname: Broken Name\ntriggers: [x]\n---\nbody")

	r := NewRegistry(dir, testLogger())
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return r
}

func TestLoadSkipsBadDocuments(t *testing.T) {
	r := loadedRegistry(t)
	if got := len(r.List()); got != 3 {
		t.Fatalf("loaded %d skills, want 3", got)
	}
	if _, ok := r.Lookup("broken"); ok {
		t.Error("broken skill should be rejected")
	}
}

func TestLookupBypass(t *testing.T) {
	r := loadedRegistry(t)
	skill, ok := r.Lookup("c-digest")
	if !ok || skill.Name != "c-digest" {
		t.Fatalf("Lookup failed: %v %v", skill, ok)
	}
	// The bypass binds even for non-conversational skills.
	if skill.Conversational {
		t.Error("fixture should be non-conversational")
	}
	if _, ok := r.Lookup("missing"); ok {
		t.Error("unknown name should not resolve")
	}
}

func TestResolveTriggerMatching(t *testing.T) {
	r := loadedRegistry(t)

	skill, ok := r.Resolve("what's the WEATHER like tomorrow?")
	if !ok || skill.Name != "b-weather" {
		t.Fatalf("case-insensitive match failed: %v %v", skill, ok)
	}

	// Both a-news and b-weather carry the "news" trigger; first declared
	// wins.
	skill, ok = r.Resolve("any news today?")
	if !ok || skill.Name != "a-news" {
		t.Fatalf("ambiguity should resolve first-declared, got %v", skill)
	}

	// Scheduled-only skills never resolve conversationally.
	if _, ok := r.Resolve("send me the digest"); ok {
		t.Error("non-conversational skill resolved from a trigger")
	}

	if _, ok := r.Resolve("totally unrelated message"); ok {
		t.Error("unrelated text should not resolve")
	}
}

func TestFetchData(t *testing.T) {
	r := loadedRegistry(t)
	skill, _ := r.Lookup("b-weather")

	// Unregistered fetcher → sentinel.
	if got := r.FetchData(context.Background(), skill); string(got) != string(FetchUnavailable) {
		t.Errorf("missing fetcher: got %s", got)
	}

	r.RegisterFetcher("weather_api", time.Second, func(ctx context.Context) (json.RawMessage, error) {
		return json.RawMessage(`{"high":21}`), nil
	})
	if got := r.FetchData(context.Background(), skill); string(got) != `{"high":21}` {
		t.Errorf("fetch: got %s", got)
	}

	// Failing fetcher → sentinel, not an error.
	r.RegisterFetcher("weather_api", time.Second, func(ctx context.Context) (json.RawMessage, error) {
		return nil, errors.New("upstream down")
	})
	if got := r.FetchData(context.Background(), skill); string(got) != string(FetchUnavailable) {
		t.Errorf("failed fetch: got %s", got)
	}
}

func TestFetchDataTimeout(t *testing.T) {
	r := loadedRegistry(t)
	skill, _ := r.Lookup("b-weather")

	r.RegisterFetcher("weather_api", 50*time.Millisecond, func(ctx context.Context) (json.RawMessage, error) {
		select {
		case <-time.After(2 * time.Second):
			return json.RawMessage(`{"late":true}`), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	start := time.Now()
	got := r.FetchData(context.Background(), skill)
	if string(got) != string(FetchUnavailable) {
		t.Errorf("timed-out fetch: got %s", got)
	}
	if time.Since(start) > time.Second {
		t.Error("fetch did not respect its timeout")
	}
}

func TestFetchDataNoFetcherRef(t *testing.T) {
	r := loadedRegistry(t)
	skill, _ := r.Lookup("a-news")
	if got := r.FetchData(context.Background(), skill); got != nil {
		t.Errorf("skill without fetcher ref should fetch nil, got %s", got)
	}
}

func TestReloadSwapsAtomically(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "one", "---\nname: one\ntriggers: [one]\nconversational: true\n---\nBody.")
	r := NewRegistry(dir, testLogger())
	if err := r.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Lookup("one"); !ok {
		t.Fatal("skill one missing after load")
	}

	os.RemoveAll(filepath.Join(dir, "one"))
	writeSkill(t, dir, "two", "---\nname: two\ntriggers: [two]\nconversational: true\n---\nBody.")
	if err := r.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Lookup("one"); ok {
		t.Error("removed skill survived reload")
	}
	if _, ok := r.Lookup("two"); !ok {
		t.Error("new skill missing after reload")
	}
}
