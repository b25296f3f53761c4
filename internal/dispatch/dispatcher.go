package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/donnabot/donna/internal/agent"
	"github.com/donnabot/donna/internal/capture"
	"github.com/donnabot/donna/internal/channels"
	"github.com/donnabot/donna/internal/commands"
	"github.com/donnabot/donna/internal/envelope"
	"github.com/donnabot/donna/internal/observability"
	"github.com/donnabot/donna/internal/pipeline"
	"github.com/donnabot/donna/internal/reminders"
	"github.com/donnabot/donna/internal/schedule"
	"github.com/donnabot/donna/internal/skills"
	"github.com/donnabot/donna/pkg/models"
)

// User-facing fallback lines for failed invocations.
const (
	msgStillThinking = "Still thinking — I'll follow up."
	msgCouldNotDo    = "I couldn't complete that."
)

// Invoker runs one agent subprocess per request.
type Invoker interface {
	Invoke(ctx context.Context, job *agent.Job) (string, *agent.Invocation, error)
}

// MemoryPutter is the memory service write side.
type MemoryPutter interface {
	Put(ctx context.Context, channelID, userText, reply string) error
}

// Config wires the dispatcher's collaborators. Logger, Metrics, Builder,
// Invoker, Pipeline, Sender, and Skills are required; the rest degrade to
// no-ops when nil.
type Config struct {
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer
	Builder  *envelope.Builder
	Invoker  Invoker
	Pipeline *pipeline.Pipeline
	Sender   channels.Sender
	Typer    channels.Typer
	Mirror   channels.Sender
	Skills   *skills.Registry
	Commands *commands.Registry
	Memory   MemoryPutter
	Captures capture.Recorder
	Aliases  *channels.Aliases

	// BufferSize bounds the per-channel recent buffer.
	BufferSize int
	// SwitchSignal fires on consecutive cross-channel acquisitions.
	SwitchSignal SwitchSignal
}

// Dispatcher runs the request path: serialise per channel, assemble the
// envelope, invoke the agent, process the response, post the result.
type Dispatcher struct {
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	builder  *envelope.Builder
	invoker  Invoker
	pipe     *pipeline.Pipeline
	sender   channels.Sender
	typer    channels.Typer
	mirror   channels.Sender
	skills   *skills.Registry
	commands *commands.Registry
	memory   MemoryPutter
	captures capture.Recorder
	aliases  *channels.Aliases

	serializer *Serializer
	sessions   *Sessions
	wg         sync.WaitGroup
}

// New validates the wiring and creates a dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	switch {
	case cfg.Logger == nil:
		return nil, fmt.Errorf("dispatch: logger is required")
	case cfg.Metrics == nil:
		return nil, fmt.Errorf("dispatch: metrics are required")
	case cfg.Builder == nil:
		return nil, fmt.Errorf("dispatch: envelope builder is required")
	case cfg.Invoker == nil:
		return nil, fmt.Errorf("dispatch: invoker is required")
	case cfg.Pipeline == nil:
		return nil, fmt.Errorf("dispatch: pipeline is required")
	case cfg.Sender == nil:
		return nil, fmt.Errorf("dispatch: sender is required")
	case cfg.Skills == nil:
		return nil, fmt.Errorf("dispatch: skills registry is required")
	}
	if cfg.Tracer == nil {
		cfg.Tracer, _ = observability.NewTracer(observability.TraceConfig{})
	}
	if cfg.Captures == nil {
		cfg.Captures = capture.Nop{}
	}

	return &Dispatcher{
		logger:     cfg.Logger.With("component", "dispatch"),
		metrics:    cfg.Metrics,
		tracer:     cfg.Tracer,
		builder:    cfg.Builder,
		invoker:    cfg.Invoker,
		pipe:       cfg.Pipeline,
		sender:     cfg.Sender,
		typer:      cfg.Typer,
		mirror:     cfg.Mirror,
		skills:     cfg.Skills,
		commands:   cfg.Commands,
		memory:     cfg.Memory,
		captures:   cfg.Captures,
		aliases:    cfg.Aliases,
		serializer: NewSerializer(cfg.SwitchSignal),
		sessions:   NewSessions(cfg.BufferSize),
	}, nil
}

// ActiveChannels reports how many channels have sessions, for /status.
func (d *Dispatcher) ActiveChannels() int { return d.sessions.Len() }

// Wait blocks until all in-flight requests finish.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// HandleInbound routes one received message: slash commands directly,
// everything else through the request path.
func (d *Dispatcher) HandleInbound(ctx context.Context, in channels.Inbound) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return
	}
	text, raw := commands.StripRawSuffix(text)

	if parsed := commands.Parse(text); parsed != nil {
		d.handleCommand(ctx, in, parsed)
		return
	}

	sess := d.sessions.Get(in.ChannelID)
	sess.Append(in.Username, text, in.ReceivedAt)

	// Conversational skill triggers resolve before envelope assembly so the
	// skill's instructions and fetched data ride along with the request.
	skill, _ := d.skills.Resolve(text)

	req := models.NewRequest(models.OriginUser, in.ChannelID, text)
	req.UserID = in.UserID
	req.Raw = raw
	if skill != nil {
		req.SkillName = skill.Name
	}
	d.submit(ctx, req, skill, false)
}

func (d *Dispatcher) handleCommand(ctx context.Context, in channels.Inbound, parsed *commands.Parsed) {
	if d.commands != nil {
		if _, ok := d.commands.Get(parsed.Name); ok {
			res, err := d.commands.Execute(ctx, &commands.Invocation{
				Name:      parsed.Name,
				Args:      parsed.Args,
				ChannelID: in.ChannelID,
				UserID:    in.UserID,
			})
			if err != nil {
				d.logger.Error(ctx, "command failed", "command", parsed.Name, "error", err)
				d.postText(ctx, in.ChannelID, msgCouldNotDo)
				return
			}
			switch {
			case res.RunSkill != "":
				d.submitSkill(ctx, in.ChannelID, res.RunSkill)
			case res.Error != "":
				d.postText(ctx, in.ChannelID, res.Error)
			case res.Text != "":
				d.postText(ctx, in.ChannelID, res.Text)
			}
			return
		}
	}

	// /skillname shorthand always binds, bypassing triggers.
	if _, ok := d.skills.Lookup(parsed.Name); ok {
		d.submitSkill(ctx, in.ChannelID, parsed.Name)
		return
	}

	d.postText(ctx, in.ChannelID, fmt.Sprintf("Unknown command /%s.", parsed.Name))
}

func (d *Dispatcher) submitSkill(ctx context.Context, channelID, name string) {
	skill, ok := d.skills.Lookup(name)
	if !ok {
		d.postText(ctx, channelID, fmt.Sprintf("Unknown skill %q.", name))
		return
	}
	req := models.NewSkillRequest(models.OriginUser, channelID, skill.Name)
	d.submit(ctx, req, skill, false)
}

// submit runs the request on its own goroutine with panic isolation; a
// panicking request is one failed request, never a dead process.
func (d *Dispatcher) submit(ctx context.Context, req *models.Request, skill *skills.Skill, mirror bool) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error(ctx, "request panicked",
					"request_id", req.ID, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
				d.metrics.RequestCounter.WithLabelValues(string(req.Origin), "error").Inc()
			}
		}()
		_, _ = d.run(ctx, req, skill, mirror)
	}()
}

// RunJob executes one scheduled binding synchronously; it satisfies
// schedule.Runner. The returned text feeds the execution record.
func (d *Dispatcher) RunJob(ctx context.Context, b schedule.Binding) (string, error) {
	skill, ok := d.skills.Lookup(b.Skill)
	if !ok {
		return "", fmt.Errorf("job %s: unknown skill %q", b.Job, b.Skill)
	}
	req := models.NewSkillRequest(models.OriginScheduled, d.resolve(b.Channel), skill.Name)
	return d.run(ctx, req, skill, b.Mirror)
}

// DeliverReminder posts one due reminder; it satisfies reminders.Deliverer.
// Reminder delivery never touches the LLM path.
func (d *Dispatcher) DeliverReminder(ctx context.Context, r *reminders.Reminder) error {
	msg := models.OutboundMessage{Content: "⏰ Reminder: " + r.Task}
	return d.sender.Send(ctx, d.resolve(r.ChannelID), msg)
}

// run is the single request path shared by user messages and scheduled
// jobs. Every terminal request reaches exactly one outcome and releases its
// lease.
func (d *Dispatcher) run(ctx context.Context, req *models.Request, skill *skills.Skill, mirror bool) (string, error) {
	ctx = observability.WithRequestID(ctx, req.ID)
	ctx = observability.WithChannelID(ctx, req.ChannelID)
	ctx, span := d.tracer.StartRequest(ctx, string(req.Origin), req.ChannelID)
	defer span.End()

	lease, err := d.serializer.Acquire(ctx, req.ChannelID)
	if err != nil {
		d.logger.Warn(ctx, "acquisition aborted", "error", err)
		d.finish(ctx, req, "error")
		return "", err
	}
	defer lease.Release()

	sess := d.sessions.Get(req.ChannelID)
	sess.SetLastOrigin(req.ChannelID)
	if d.typer != nil {
		d.typer.Typing(ctx, req.ChannelID)
	}

	var blk *envelope.SkillBlock
	if skill != nil {
		blk = &envelope.SkillBlock{
			Name:         skill.Name,
			Instructions: skill.Instructions,
			Data:         d.skills.FetchData(ctx, skill),
		}
		if req.Text == "" {
			req.Text = fmt.Sprintf("Run the %s skill.", skill.Name)
		}
	}

	env := d.builder.Build(ctx, envelope.Input{
		Recent:  sess.Recent(),
		Skill:   blk,
		Request: req.Text,
	})

	var notices atomic.Int32
	finalText, _, err := d.invoker.Invoke(ctx, &agent.Job{
		RequestID: req.ID,
		Envelope:  env,
		Notice: func(tool string) {
			notices.Add(1)
			d.postText(ctx, req.ChannelID, noticeText(tool))
		},
	})
	if err != nil {
		d.tracer.RecordError(span, err)
		d.logger.Error(ctx, "invocation failed", "error", err)
		if notices.Load() > 0 {
			d.postText(ctx, req.ChannelID, msgStillThinking)
		} else {
			d.postText(ctx, req.ChannelID, msgCouldNotDo)
		}
		d.record(ctx, req, "", "failed", string(agent.CodeOf(err)), "")
		d.finish(ctx, req, "error")
		return "", err
	}

	outcome := d.pipe.Process(pipeline.Input{Body: finalText, UserText: req.Text, Raw: req.Raw})
	switch outcome.Kind {
	case pipeline.OutcomeSuppressed:
		d.logger.Info(ctx, "response suppressed", "reason", outcome.Reason)
		d.record(ctx, req, finalText, "suppressed", outcome.Reason, "")
		d.finish(ctx, req, "suppressed")
		return finalText, nil

	case pipeline.OutcomeFailed:
		d.postText(ctx, req.ChannelID, outcome.FailMessage)
		d.record(ctx, req, finalText, "failed", outcome.FailKind, "")
		d.finish(ctx, req, "error")
		return finalText, fmt.Errorf("pipeline failed: %s", outcome.FailKind)

	default:
		if err := d.deliver(ctx, req.ChannelID, outcome.Messages, mirror); err != nil {
			d.tracer.RecordError(span, err)
			d.record(ctx, req, finalText, "failed", "egress", string(outcome.Class))
			d.finish(ctx, req, "error")
			return finalText, err
		}
		d.metrics.ChunksEmitted.Observe(float64(len(outcome.Messages)))
		d.captureMemory(ctx, req, finalText)
		d.record(ctx, req, finalText, "delivered", "", string(outcome.Class))
		d.finish(ctx, req, "ok")
		return finalText, nil
	}
}

// deliver posts the ordered chunks, optionally mirroring each one.
func (d *Dispatcher) deliver(ctx context.Context, channelID string, msgs []models.OutboundMessage, mirror bool) error {
	for i, msg := range msgs {
		if err := d.sender.Send(ctx, channelID, msg); err != nil {
			return fmt.Errorf("chunk %d/%d: %w", i+1, len(msgs), err)
		}
		if mirror && d.mirror != nil {
			if err := d.mirror.Send(ctx, channelID, msg); err != nil {
				// The mirror is best-effort; the primary delivery stands.
				d.logger.Warn(ctx, "mirror send failed", "error", err)
			}
		}
	}
	return nil
}

// captureMemory enqueues the exchange to the memory service without
// blocking or failing the request.
func (d *Dispatcher) captureMemory(ctx context.Context, req *models.Request, reply string) {
	if d.memory == nil || req.Origin != models.OriginUser || req.Text == "" {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.memory.Put(context.WithoutCancel(ctx), req.ChannelID, req.Text, reply); err != nil {
			d.logger.Warn(ctx, "memory capture failed", "error", err)
			d.metrics.MemoryCaptureFailures.Inc()
		}
	}()
}

func (d *Dispatcher) record(ctx context.Context, req *models.Request, raw, outcome, detail, class string) {
	err := d.captures.Record(ctx, capture.Capture{
		RequestID: req.ID,
		Origin:    string(req.Origin),
		ChannelID: req.ChannelID,
		Class:     class,
		Outcome:   outcome,
		Detail:    detail,
		RawBody:   raw,
	})
	if err != nil {
		d.logger.Warn(ctx, "capture record failed", "error", err)
	}
}

func (d *Dispatcher) finish(ctx context.Context, req *models.Request, outcome string) {
	d.metrics.RequestCounter.WithLabelValues(string(req.Origin), outcome).Inc()
	d.logger.Info(ctx, "request finished", "origin", string(req.Origin), "outcome", outcome)
}

func (d *Dispatcher) postText(ctx context.Context, channelID, text string) {
	if err := d.sender.Send(ctx, channelID, models.OutboundMessage{Content: text}); err != nil {
		d.logger.Error(ctx, "post failed", "channel", channelID, "error", err)
	}
}

func (d *Dispatcher) resolve(name string) string {
	if d.aliases == nil {
		return name
	}
	return d.aliases.Resolve(name)
}

// noticeText maps a tool name to the interim notice line. Tool names vary
// by provider (WebSearch, web_search, brave_web_search), so matching is
// case-insensitive substring.
func noticeText(tool string) string {
	lowered := strings.ToLower(tool)
	switch {
	case strings.Contains(lowered, "search"):
		return "_Searching the web…_"
	case strings.Contains(lowered, "fetch"):
		return "_Reading a page…_"
	case lowered == "bash":
		return "_Running a command…_"
	case lowered == "read" || lowered == "glob" || lowered == "grep":
		return "_Looking through files…_"
	default:
		return fmt.Sprintf("_Working on it (%s)…_", tool)
	}
}
