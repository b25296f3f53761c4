package agent

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/donnabot/donna/internal/config"
	"github.com/donnabot/donna/internal/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Output: io.Discard})
}

func testConfig() config.AgentConfig {
	return config.AgentConfig{
		Binary:         "agent-cli",
		MaxRunTime:     config.Duration(5 * time.Second),
		MaxRunTimeCap:  config.Duration(10 * time.Second),
		MaxOutputBytes: 1 << 20,
	}
}

// TestHelperProcess stands in for the agent CLI. It is invoked by the test
// binary itself, never directly.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_AGENT_HELPER") == "" {
		return
	}
	defer os.Exit(0)

	switch os.Getenv("AGENT_HELPER_MODE") {
	case "happy":
		fmt.Println(`{"type":"system","subtype":"init"}`)
		fmt.Println(`{"type":"assistant","message":{"content":[{"type":"text","text":"partial thought"}]}}`)
		fmt.Println(`{"type":"result","result":"final answer"}`)
	case "no-result":
		fmt.Println(`{"type":"assistant","message":{"content":[{"type":"text","text":"first"}]}}`)
		fmt.Println(`{"type":"assistant","message":{"content":[{"type":"text","text":"second"}]}}`)
	case "garbage":
		fmt.Println("this is not json")
		fmt.Println("neither is this")
	case "nonzero":
		fmt.Fprintln(os.Stderr, "boom: config missing")
		os.Exit(3)
	case "hang":
		time.Sleep(30 * time.Second)
	case "flood":
		row := `{"type":"assistant","message":{"content":[{"type":"text","text":"` + strings.Repeat("x", 500) + `"}]}}`
		for i := 0; i < 1000; i++ {
			fmt.Println(row)
		}
	case "echo-stdin":
		in, _ := io.ReadAll(os.Stdin)
		fmt.Printf("{\"type\":\"result\",\"result\":%q}\n", string(in))
	}
}

func helperInvoker(t *testing.T, cfg config.AgentConfig, mode string) *Invoker {
	t.Helper()
	v := New(cfg, testLogger(), nil)
	v.grace = 200 * time.Millisecond
	v.newCmd = func(bin string, args ...string) *exec.Cmd {
		cmd := exec.Command(os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_AGENT_HELPER=1", "AGENT_HELPER_MODE="+mode)
		cmd.Dir = "."
		return cmd
	}
	return v
}

func TestInvokeHappyPath(t *testing.T) {
	v := helperInvoker(t, testConfig(), "happy")
	text, inv, err := v.Invoke(context.Background(), &Job{RequestID: "r1", Envelope: []byte("prompt")})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if text != "final answer" {
		t.Errorf("text = %q", text)
	}
	if inv.FinalStatus != StatusOK {
		t.Errorf("status = %s", inv.FinalStatus)
	}
	if inv.StreamedEvents != 3 {
		t.Errorf("events = %d, want 3", inv.StreamedEvents)
	}
	if inv.InputBytes != len("prompt") {
		t.Errorf("input bytes = %d", inv.InputBytes)
	}
}

func TestInvokeEnvelopeOnStdin(t *testing.T) {
	v := helperInvoker(t, testConfig(), "echo-stdin")
	text, _, err := v.Invoke(context.Background(), &Job{RequestID: "r2", Envelope: []byte("## REQUEST\nhi")})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if text != "## REQUEST\nhi" {
		t.Errorf("stdin did not round-trip: %q", text)
	}
}

func TestInvokeNoResultFallsBackToText(t *testing.T) {
	v := helperInvoker(t, testConfig(), "no-result")
	text, inv, err := v.Invoke(context.Background(), &Job{RequestID: "r3"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if text != "first\nsecond" {
		t.Errorf("text = %q", text)
	}
	if inv.FinalStatus != StatusOK {
		t.Errorf("status = %s", inv.FinalStatus)
	}
}

func TestInvokeGarbageIsParseError(t *testing.T) {
	v := helperInvoker(t, testConfig(), "garbage")
	_, inv, err := v.Invoke(context.Background(), &Job{RequestID: "r4"})
	if CodeOf(err) != ErrParseError {
		t.Fatalf("err = %v, want parse_error", err)
	}
	if inv.FinalStatus != StatusParseError {
		t.Errorf("status = %s", inv.FinalStatus)
	}
}

func TestInvokeNonzeroExit(t *testing.T) {
	v := helperInvoker(t, testConfig(), "nonzero")
	_, inv, err := v.Invoke(context.Background(), &Job{RequestID: "r5"})
	if CodeOf(err) != ErrNonzeroExit {
		t.Fatalf("err = %v, want nonzero_exit", err)
	}
	if inv.FinalStatus != StatusNonzeroExit {
		t.Errorf("status = %s", inv.FinalStatus)
	}
	if !strings.Contains(inv.StderrExcerpt, "boom: config missing") {
		t.Errorf("stderr excerpt missing diagnostics: %q", inv.StderrExcerpt)
	}
}

func TestInvokeTimeout(t *testing.T) {
	v := helperInvoker(t, testConfig(), "hang")
	start := time.Now()
	_, inv, err := v.Invoke(context.Background(), &Job{RequestID: "r6", Timeout: 300 * time.Millisecond})
	if CodeOf(err) != ErrTimeout {
		t.Fatalf("err = %v, want timeout", err)
	}
	if inv.FinalStatus != StatusTimeout {
		t.Errorf("status = %s", inv.FinalStatus)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("kill took too long: %s", elapsed)
	}
}

func TestInvokeOversizeKilled(t *testing.T) {
	cfg := testConfig()
	cfg.MaxOutputBytes = 4096
	v := helperInvoker(t, cfg, "flood")
	_, inv, err := v.Invoke(context.Background(), &Job{RequestID: "r7"})
	if CodeOf(err) != ErrOversize {
		t.Fatalf("err = %v, want oversize", err)
	}
	if inv.FinalStatus != StatusKilled {
		t.Errorf("status = %s", inv.FinalStatus)
	}
}

func TestInvokeTimeoutNeverExtendsPastCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRunTime = config.Duration(200 * time.Millisecond)
	cfg.MaxRunTimeCap = config.Duration(300 * time.Millisecond)
	v := helperInvoker(t, cfg, "hang")
	start := time.Now()
	_, _, err := v.Invoke(context.Background(), &Job{RequestID: "r8", Timeout: time.Hour})
	if CodeOf(err) != ErrTimeout {
		t.Fatalf("err = %v, want timeout", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("cap not enforced, ran %s", elapsed)
	}
}

func TestReadStreamInterimNotices(t *testing.T) {
	v := New(testConfig(), testLogger(), nil)
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	clock := []time.Duration{0, time.Second, 5 * time.Second, 6 * time.Second, 7 * time.Second, 8 * time.Second}
	i := 0
	v.now = func() time.Time {
		d := clock[len(clock)-1]
		if i < len(clock) {
			d = clock[i]
			i++
		}
		return base.Add(d)
	}

	toolUse := func(name string) string {
		return fmt.Sprintf(`{"type":"assistant","message":{"content":[{"type":"tool_use","name":%q}]}}`, name)
	}
	stream := strings.Join([]string{
		toolUse("WebSearch"), // t+0s: notified
		toolUse("Bash"),      // t+1s: throttled
		toolUse("Bash"),      // t+5s: notified
		toolUse("WebSearch"), // t+6s: already seen
		`{"type":"result","result":"done"}`,
	}, "\n")

	var notices []string
	inv := &Invocation{}
	job := &Job{Notice: func(tool string) { notices = append(notices, tool) }}
	res := v.readStream(context.Background(), strings.NewReader(stream), job, inv)

	if !res.sawResult || res.result != "done" {
		t.Fatalf("result not seen: %+v", res)
	}
	want := []string{"WebSearch", "Bash"}
	if len(notices) != len(want) {
		t.Fatalf("notices = %v, want %v", notices, want)
	}
	for i := range want {
		if notices[i] != want[i] {
			t.Errorf("notice %d = %q, want %q", i, notices[i], want[i])
		}
	}
	if inv.InterimNotices != 2 {
		t.Errorf("InterimNotices = %d", inv.InterimNotices)
	}
}

func TestReadStreamStopsAtResult(t *testing.T) {
	v := New(testConfig(), testLogger(), nil)
	stream := `{"type":"result","result":"early"}` + "\n" +
		`{"type":"assistant","message":{"content":[{"type":"text","text":"late"}]}}`
	inv := &Invocation{}
	res := v.readStream(context.Background(), strings.NewReader(stream), &Job{}, inv)
	if res.result != "early" {
		t.Errorf("result = %q", res.result)
	}
	if len(res.textParts) != 0 {
		t.Errorf("events after result should be unread, got %v", res.textParts)
	}
}

func TestBuildArgs(t *testing.T) {
	args := buildArgs("sonnet")
	joined := strings.Join(args, " ")
	for _, want := range []string{"-p", "--output-format stream-json", "--verbose", "--model sonnet"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %v", want, args)
		}
	}
	if strings.Contains(strings.Join(buildArgs(""), " "), "--model") {
		t.Error("empty model should omit --model")
	}
}

func TestScrubEnv(t *testing.T) {
	env := []string{
		"PATH=/usr/bin",
		"DISCORD_BOT_TOKEN=secret",
		"DONNA_CONFIG=/etc/donna.yaml",
		"SOME_BOT_TOKEN=abc",
		"HOME=/home/u",
	}
	got := scrubEnv(env)
	joined := strings.Join(got, " ")
	if strings.Contains(joined, "secret") || strings.Contains(joined, "DONNA_") || strings.Contains(joined, "SOME_BOT_TOKEN") {
		t.Errorf("secrets survived: %v", got)
	}
	if !strings.Contains(joined, "PATH=/usr/bin") || !strings.Contains(joined, "HOME=/home/u") {
		t.Errorf("benign vars dropped: %v", got)
	}
}

func TestRing(t *testing.T) {
	r := newRing(8)
	if r.String() != "" {
		t.Errorf("empty ring = %q", r.String())
	}
	r.Write([]byte("abc"))
	if r.String() != "abc" {
		t.Errorf("partial ring = %q", r.String())
	}
	r.Write([]byte("defghij"))
	if got := r.String(); got != "cdefghij" {
		t.Errorf("wrapped ring = %q, want cdefghij", got)
	}
	r.Write([]byte("0123456789ABCDEF"))
	if got := r.String(); got != "89ABCDEF" {
		t.Errorf("oversized write = %q, want 89ABCDEF", got)
	}
}
