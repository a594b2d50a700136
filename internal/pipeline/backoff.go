package pipeline

import (
	"sync"
	"time"

	"github.com/scanwatch/scanwatch/pkg/logger"
)

// Outcome classifies how processing one segment ended.
type Outcome int

const (
	OutcomeValid Outcome = iota
	OutcomeInvalid
)

const (
	// backoffIncreaseStep raises the threshold when recent segments keep
	// failing. Larger than the decrease step: a false-fresh read should
	// raise the floor quickly, while lowering it requires a full clean
	// window.
	backoffIncreaseStep = 60 * time.Second
	backoffDecreaseStep = 30 * time.Second

	// invalidTolerance is how many invalid outcomes the window may carry
	// before the threshold is raised.
	invalidTolerance = 2
)

// Controller adapts the minimum age a segment must reach before it is worth
// downloading. Upstream availability lags real time unpredictably; a fixed
// delay either wastes requests or wastes retries, so the controller tracks a
// sliding window of recent outcomes and moves the threshold inside
// [min, max].
type Controller struct {
	mu        sync.Mutex
	threshold time.Duration
	min       time.Duration
	max       time.Duration
	window    []Outcome
	size      int
	logger    *logger.Logger
}

// NewController creates a backoff controller starting at the minimum
// threshold.
func NewController(min, max time.Duration, windowSize int, log *logger.Logger) *Controller {
	return &Controller{
		threshold: min,
		min:       min,
		max:       max,
		window:    make([]Outcome, 0, windowSize),
		size:      windowSize,
		logger:    log.Named("backoff"),
	}
}

// Threshold returns the current minimum segment age.
func (c *Controller) Threshold() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threshold
}

// Record appends one outcome to the window, evicting the oldest beyond
// capacity, and recomputes the threshold.
func (c *Controller) Record(outcome Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.window = append(c.window, outcome)
	if len(c.window) > c.size {
		c.window = c.window[1:]
	}

	invalid := 0
	for _, o := range c.window {
		if o == OutcomeInvalid {
			invalid++
		}
	}

	previous := c.threshold
	switch {
	case invalid > invalidTolerance:
		c.threshold += backoffIncreaseStep
		if c.threshold > c.max {
			c.threshold = c.max
		}
	case len(c.window) == c.size && invalid == 0:
		c.threshold -= backoffDecreaseStep
		if c.threshold < c.min {
			c.threshold = c.min
		}
	}

	if c.threshold != previous {
		c.logger.Info("Adjusted backoff threshold",
			logger.Duration("previous", previous),
			logger.Duration("threshold", c.threshold),
			logger.Int("window_invalid", invalid),
			logger.Int("window_len", len(c.window)))
	}
}
