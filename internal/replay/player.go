// ABOUTME: Deterministic replay of scripts against a session controller
// ABOUTME: Advances a script clock to each step and dispatches the step synchronously

package replay

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harper/triplog/internal/models"
	"github.com/harper/triplog/internal/recorder"
)

// Clock is a settable clock. The controller being replayed must use it.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock reading start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Summary reports what a replay did.
type Summary struct {
	Steps         int      `json:"steps"`
	Commands      int      `json:"commands"`
	Accepted      int      `json:"accepted"`
	Discarded     int      `json:"discarded"`
	Failed        int      `json:"failed"`
	CommandErrors []string `json:"command_errors,omitempty"`
}

// Player replays scripts. Steps are dispatched directly to the controller
// rather than through the provider's event channel so each step completes
// before the clock moves on.
type Player struct {
	ctrl     *recorder.Controller
	provider *Provider
	clock    *Clock
	logger   *log.Logger
}

// NewPlayer creates a player. provider may be nil; when set, authorization
// steps also change what it reports.
func NewPlayer(ctrl *recorder.Controller, provider *Provider, clock *Clock, logger *log.Logger) *Player {
	return &Player{
		ctrl:     ctrl,
		provider: provider,
		clock:    clock,
		logger:   logger.WithPrefix("replay"),
	}
}

// Play runs every step of s. Rejected commands are collected in the
// summary and do not stop the replay.
func (p *Player) Play(ctx context.Context, s *Script) (Summary, error) {
	var sum Summary
	if s.Settings != nil {
		p.ctrl.UpdateSettings(*s.Settings)
	}

	for _, step := range s.Steps {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		now := s.Start.Add(step.At)
		p.clock.Set(now)
		sum.Steps++

		switch {
		case step.Command != "":
			sum.Commands++
			cmd, _ := recorder.ParseCommand(step.Command)
			var err error
			if cmd == recorder.CommandStart && step.Name != "" {
				err = p.ctrl.StartWithName(ctx, step.Name)
			} else {
				err = p.ctrl.Command(ctx, cmd)
			}
			if err != nil {
				p.logger.Warn("command rejected", "at", step.At, "command", cmd, "err", err)
				sum.CommandErrors = append(sum.CommandErrors, err.Error())
			}

		case len(step.Fixes) > 0:
			fixes := make([]models.Fix, len(step.Fixes))
			for i, f := range step.Fixes {
				fixes[i] = s.Fix(f)
			}
			res := p.ctrl.HandleFixes(ctx, fixes)
			sum.Accepted += res.Accepted
			sum.Discarded += res.Discarded
			sum.Failed += res.Failed

		case step.Heading != nil:
			p.ctrl.HandleHeading(models.Heading{
				Timestamp: now,
				Degrees:   step.Heading.Degrees,
				Accuracy:  step.Heading.Accuracy,
			})

		case step.Authorization != "":
			if p.provider != nil {
				p.provider.setAuthorization(step.Authorization)
			}
			p.ctrl.HandleAuthorization(ctx, step.Authorization)

		case step.ProviderPaused:
			p.ctrl.HandleProviderPaused(ctx)

		case step.ProviderError != "":
			p.ctrl.HandleProviderError(recorder.ProviderError{Kind: step.ProviderError})

		case step.Background != nil:
			p.ctrl.SetBackgrounded(*step.Background)
		}
	}

	p.logger.Info("replay finished", "script", s.Name, "steps", sum.Steps, "accepted", sum.Accepted)
	return sum, nil
}
