package ratelimit

import (
	"fmt"
	"time"

	"github.com/Proton-105/guildbank/pkg/config"
)

// Rule allows Limit requests per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Rules holds the parsed rate-limit configuration.
type Rules struct {
	enabled  bool
	perUser  Rule
	commands map[string]Rule
	exempt   map[int64]struct{}
}

// NewRules parses cfg. A malformed window is a configuration error.
func NewRules(cfg config.RateLimitConfig) (*Rules, error) {
	r := &Rules{
		enabled:  cfg.Enabled,
		commands: make(map[string]Rule, 2),
		exempt:   make(map[int64]struct{}, len(cfg.Whitelist)),
	}
	for _, id := range cfg.Whitelist {
		r.exempt[id] = struct{}{}
	}
	if !cfg.Enabled {
		return r, nil
	}

	var err error
	if r.perUser, err = parseRule("per_user", cfg.PerUser); err != nil {
		return nil, err
	}
	for name, raw := range map[string]config.RateLimitRule{
		"send":   cfg.Commands.Send,
		"create": cfg.Commands.Create,
	} {
		if raw.Limit == 0 && raw.Window == "" {
			continue
		}
		rule, err := parseRule("commands."+name, raw)
		if err != nil {
			return nil, err
		}
		r.commands[name] = rule
	}

	return r, nil
}

// Enabled reports whether limits are enforced at all.
func (r *Rules) Enabled() bool {
	return r != nil && r.enabled
}

// Exempt reports whether userID bypasses every limit.
func (r *Rules) Exempt(userID int64) bool {
	_, ok := r.exempt[userID]
	return ok
}

// PerUser is the rule applied to every command of a user, and to every API caller.
func (r *Rules) PerUser() Rule {
	return r.perUser
}

// ForCommand returns the extra rule for command (without the slash), if any.
func (r *Rules) ForCommand(command string) (Rule, bool) {
	rule, ok := r.commands[command]
	return rule, ok
}

func parseRule(name string, raw config.RateLimitRule) (Rule, error) {
	if raw.Window == "" {
		return Rule{}, fmt.Errorf("rate_limit.%s: window is not set", name)
	}
	window, err := time.ParseDuration(raw.Window)
	if err != nil {
		return Rule{}, fmt.Errorf("rate_limit.%s: parse window %q: %w", name, raw.Window, err)
	}
	if window <= 0 {
		return Rule{}, fmt.Errorf("rate_limit.%s: window must be positive", name)
	}
	return Rule{Limit: raw.Limit, Window: window}, nil
}
