// Package cycle tracks the per-user weekly matching window.
package cycle

import (
	"context"
	"fmt"
	"time"

	"github.com/kinship/cycle-api/apperr"
	"github.com/kinship/cycle-api/logger"
	"github.com/kinship/cycle-api/models"
)

const (
	DefaultLength = 7
	Day           = 24 * time.Hour
)

// Store persists one start instant per user.
type Store interface {
	// Ensure returns the user's cycle, creating it with start instant now if absent.
	Ensure(ctx context.Context, userID string, now time.Time) (models.Cycle, error)
	// Replace overwrites the user's start instant.
	Replace(ctx context.Context, cycle models.Cycle) (models.Cycle, error)
}

// Advance derives the cycle view for (start, now). It has no side effects.
// Elapsed days are clamped to [1, length], or 0 when now precedes start.
func Advance(start, now time.Time, length int) models.CycleProgress {
	if length <= 0 {
		length = DefaultLength
	}
	p := models.CycleProgress{StartInstant: start}
	if now.Before(start) {
		p.DaysRemaining = length
		p.Label = daysLeftLabel(length)
		return p
	}
	elapsed := int(now.Sub(start)/Day) + 1
	if elapsed > length {
		elapsed = length
	}
	p.ElapsedDays = elapsed
	p.IsComplete = elapsed >= length
	p.Progress = float64(elapsed) / float64(length)
	if p.Progress > 1 {
		p.Progress = 1
	}
	p.DaysRemaining = length - elapsed
	if p.IsComplete {
		p.Label = "Cycle complete"
	} else {
		p.Label = daysLeftLabel(p.DaysRemaining)
	}
	return p
}

func daysLeftLabel(days int) string {
	if days == 1 {
		return "1 day left"
	}
	return fmt.Sprintf("%d days left", days)
}

// Clock reads cycles through Store. Reset is the only mutation and must only be
// reached from cycle resolution or an explicit member reset.
type Clock struct {
	store  Store
	now    func() time.Time
	length int
	log    *logger.Logger
}

func NewClock(store Store, now func() time.Time, length int, log *logger.Logger) *Clock {
	if now == nil {
		now = time.Now
	}
	if length <= 0 {
		length = DefaultLength
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Clock{store: store, now: now, length: length, log: log.With("service", "CycleClock")}
}

func (c *Clock) Now() time.Time { return c.now() }

func (c *Clock) Length() int { return c.length }

// Current returns the user's cycle and its progress as of now.
func (c *Clock) Current(ctx context.Context, userID string) (models.Cycle, models.CycleProgress, error) {
	now := c.now()
	cy, err := c.store.Ensure(ctx, userID, now)
	if err != nil {
		return models.Cycle{}, models.CycleProgress{}, apperr.Transient("load cycle", err)
	}
	return cy, Advance(cy.StartInstant, now, c.length), nil
}

// Reset opens a new cycle starting now.
func (c *Clock) Reset(ctx context.Context, userID string) (models.Cycle, error) {
	now := c.now()
	cy, err := c.store.Replace(ctx, models.Cycle{UserID: userID, StartInstant: now, UpdatedAt: now})
	if err != nil {
		return models.Cycle{}, apperr.Transient("reset cycle", err)
	}
	c.log.Info("cycle reset", "user_id", userID, "start", cy.StartInstant)
	return cy, nil
}
