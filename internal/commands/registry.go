package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/donnabot/donna/internal/observability"
)

// Registry manages command registrations and execution.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Command
	aliases  map[string]string
	logger   *observability.Logger
}

// NewRegistry creates an empty command registry.
func NewRegistry(logger *observability.Logger) *Registry {
	return &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]string),
		logger:   logger.With("component", "commands"),
	}
}

// Register adds a command. Name and alias collisions are errors.
func (r *Registry) Register(cmd *Command) error {
	if cmd == nil || cmd.Name == "" {
		return fmt.Errorf("command name is required")
	}
	if cmd.Handler == nil {
		return fmt.Errorf("command %q has no handler", cmd.Name)
	}
	name := strings.ToLower(strings.TrimSpace(cmd.Name))

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[name]; exists {
		return fmt.Errorf("command %q already registered", name)
	}
	if owner, exists := r.aliases[name]; exists {
		return fmt.Errorf("command %q conflicts with an alias of %q", name, owner)
	}
	r.commands[name] = cmd

	for _, alias := range cmd.Aliases {
		alias = strings.ToLower(strings.TrimSpace(alias))
		if alias == "" || alias == name {
			continue
		}
		if _, exists := r.commands[alias]; exists {
			return fmt.Errorf("alias %q of %q shadows a command", alias, name)
		}
		if owner, exists := r.aliases[alias]; exists {
			return fmt.Errorf("alias %q of %q already belongs to %q", alias, name, owner)
		}
		r.aliases[alias] = name
	}
	return nil
}

// Get retrieves a command by name or alias.
func (r *Registry) Get(name string) (*Command, bool) {
	name = strings.ToLower(strings.TrimSpace(name))

	r.mu.RLock()
	defer r.mu.RUnlock()

	if cmd, ok := r.commands[name]; ok {
		return cmd, true
	}
	if real, ok := r.aliases[name]; ok {
		return r.commands[real], true
	}
	return nil, false
}

// List returns all registered commands sorted by name.
func (r *Registry) List() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs the command named in the invocation.
func (r *Registry) Execute(ctx context.Context, inv *Invocation) (*Result, error) {
	if inv == nil {
		return nil, fmt.Errorf("invocation is nil")
	}
	cmd, ok := r.Get(inv.Name)
	if !ok {
		return nil, fmt.Errorf("command %q not found", inv.Name)
	}
	if !cmd.AcceptsArgs && strings.TrimSpace(inv.Args) != "" {
		return &Result{Error: fmt.Sprintf("/%s does not take arguments", cmd.Name)}, nil
	}
	inv.Command = cmd
	r.logger.Debug(ctx, "executing command", "command", cmd.Name, "channel", inv.ChannelID)
	return cmd.Handler(ctx, inv)
}
