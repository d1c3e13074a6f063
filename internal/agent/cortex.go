package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"bayescortex/internal/nn"
)

// Consistency selects which generation of neighbour state a tick reads.
type Consistency string

const (
	// ReadPrevious gives every tick in a step the state published at the start
	// of the step, so the result does not depend on tick order.
	ReadPrevious Consistency = "previous"
	// ReadLive reads whatever is stored, including neighbours already ticked
	// earlier in the same step.
	ReadLive Consistency = "live"
)

func ParseConsistency(s string) (Consistency, error) {
	switch Consistency(s) {
	case "", ReadPrevious:
		return ReadPrevious, nil
	case ReadLive:
		return ReadLive, nil
	default:
		return "", fmt.Errorf("unsupported consistency mode: %s", s)
	}
}

// Stimulus changes node state before each step's ticks.
type Stimulus interface {
	Apply(step int, net *nn.Network) error
}

type Option func(*Cortex)

func WithConsistency(mode Consistency) Option {
	return func(c *Cortex) {
		c.consistency = mode
	}
}

// WithOrder fixes the tick order. It must list every node exactly once.
func WithOrder(order []nn.NodeID) Option {
	return func(c *Cortex) {
		c.customOrder = append([]nn.NodeID(nil), order...)
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cortex) {
		c.logger = logger
	}
}

func WithStimulus(stimulus Stimulus) Option {
	return func(c *Cortex) {
		c.stimulus = stimulus
	}
}

// WithStartStep continues step numbering from a restored network.
func WithStartStep(step int) Option {
	return func(c *Cortex) {
		c.step = step
	}
}

type StepReport struct {
	Step     int
	Ticked   int
	Duration time.Duration
}

// Cortex drives a network: each Step ticks every node exactly once. All access
// to the network goes through the cortex lock, which is the step barrier.
type Cortex struct {
	mu          sync.Mutex
	id          string
	net         *nn.Network
	consistency Consistency
	customOrder []nn.NodeID
	order       []nn.NodeID
	stimulus    Stimulus
	logger      zerolog.Logger
	step        int
	generation  nn.Generation
}

func NewCortex(id string, net *nn.Network, opts ...Option) (*Cortex, error) {
	if id == "" {
		return nil, fmt.Errorf("cortex id is required")
	}
	if net == nil {
		return nil, fmt.Errorf("network is required")
	}

	c := &Cortex{
		id:          id,
		net:         net,
		consistency: ReadPrevious,
		logger:      log.Logger.With().Str("cortex", id).Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if _, err := ParseConsistency(string(c.consistency)); err != nil {
		return nil, err
	}
	if c.step < 0 {
		return nil, fmt.Errorf("start step must be >= 0")
	}
	if c.customOrder != nil {
		if err := validateOrder(c.customOrder, net.Len()); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Cortex) ID() string {
	return c.id
}

func (c *Cortex) Consistency() Consistency {
	return c.consistency
}

func (c *Cortex) StepCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// Do runs fn with exclusive access to the network between steps.
func (c *Cortex) Do(fn func(net *nn.Network) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(c.net)
}

func (c *Cortex) Step(ctx context.Context) (StepReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return StepReport{}, err
	}
	started := time.Now()

	order, err := c.tickOrder()
	if err != nil {
		return StepReport{}, err
	}

	if c.stimulus != nil {
		if err := c.stimulus.Apply(c.step, c.net); err != nil {
			return StepReport{}, fmt.Errorf("stimulus at step %d: %w", c.step, err)
		}
	}

	var view nn.View
	switch c.consistency {
	case ReadLive:
		view = c.net.Live()
	default:
		c.generation = c.net.PublishInto(c.generation)
		view = c.generation
	}

	for _, id := range order {
		if err := c.net.Tick(id, view); err != nil {
			if nn.IsFatal(err) {
				c.logger.Error().Err(err).Int("step", c.step).Int("node", int(id)).Msg("network integrity violated")
			}
			return StepReport{}, fmt.Errorf("step %d tick %s: %w", c.step, c.net.String(id), err)
		}
	}

	c.step++
	report := StepReport{Step: c.step, Ticked: len(order), Duration: time.Since(started)}
	c.logger.Debug().Int("step", report.Step).Int("ticked", report.Ticked).Dur("took", report.Duration).Msg("step complete")
	return report, nil
}

// Run steps the network steps times, calling observe after every step when it
// is non-nil.
func (c *Cortex) Run(ctx context.Context, steps int, observe func(StepReport) error) error {
	if steps < 0 {
		return fmt.Errorf("steps must be >= 0")
	}
	for i := 0; i < steps; i++ {
		report, err := c.Step(ctx)
		if err != nil {
			return err
		}
		if observe != nil {
			if err := observe(report); err != nil {
				return err
			}
		}
	}
	c.logger.Info().Int("steps", steps).Int("total", c.StepCount()).Msg("run finished")
	return nil
}

func (c *Cortex) tickOrder() ([]nn.NodeID, error) {
	if c.customOrder != nil {
		if err := validateOrder(c.customOrder, c.net.Len()); err != nil {
			return nil, err
		}
		return c.customOrder, nil
	}
	if len(c.order) != c.net.Len() {
		c.order = DefaultOrder(c.net)
	}
	return c.order, nil
}

// DefaultOrder ticks leaves first, then every other node, each group in
// handle order.
func DefaultOrder(net *nn.Network) []nn.NodeID {
	order := make([]nn.NodeID, 0, net.Len())
	var inner []nn.NodeID
	for _, view := range net.Nodes() {
		if view.IsLeaf() {
			order = append(order, view.ID)
		} else {
			inner = append(inner, view.ID)
		}
	}
	return append(order, inner...)
}

func validateOrder(order []nn.NodeID, size int) error {
	if len(order) != size {
		return fmt.Errorf("tick order lists %d nodes, network has %d", len(order), size)
	}
	seen := make([]bool, size)
	for _, id := range order {
		if id < 0 || int(id) >= size {
			return fmt.Errorf("tick order: %w: %d", nn.ErrUnknownNode, id)
		}
		if seen[id] {
			return fmt.Errorf("tick order lists node %d twice", id)
		}
		seen[id] = true
	}
	return nil
}
