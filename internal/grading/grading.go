package grading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/example/langfocus/internal/ai"
	"github.com/example/langfocus/internal/logger"
	"github.com/example/langfocus/pkg/models"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// ErrGradingUnavailable means the answer could not be scored. Nothing was
// recorded and the same answer may be submitted again.
var ErrGradingUnavailable = errors.New("grading unavailable")

// Request is one answer to grade
type Request struct {
	StatementID int
	Statement   string
	Technique   models.Technique
	Answer      string
}

// Result is the validated grading verdict
type Result struct {
	IsCorrect     bool     `json:"is_correct"`
	Score         float64  `json:"score"`
	Feedback      string   `json:"feedback"`
	Improvements  []string `json:"improvements"`
	DetectedTrick *string  `json:"detected_trick"`
	Cached        bool     `json:"-"`
}

// Config tunes retries and throughput
type Config struct {
	Timeout    time.Duration // per try
	MaxRetries int
	Backoff    time.Duration // initial backoff interval
	Workers    int
	RPS        float64
	Burst      int

	// CallTimeout bounds one shared grading call, queueing and retries included.
	// Zero derives it from Timeout, Backoff and MaxRetries.
	CallTimeout time.Duration
}

// DefaultConfig returns conservative defaults
func DefaultConfig() Config {
	return Config{
		Timeout:    20 * time.Second,
		MaxRetries: 2,
		Backoff:    500 * time.Millisecond,
		Workers:    4,
		RPS:        2,
		Burst:      4,
	}
}

// Service grades answers through an AI completer
type Service struct {
	completer ai.Completer
	prompts   *Prompts
	cache     Cache
	cfg       Config
	workers   *semaphore.Weighted
	limiter   *rate.Limiter
	inflight  singleflight.Group
	log       *logger.Logger
}

// NewService wires a grading service
func NewService(completer ai.Completer, prompts *Prompts, cache Cache, cfg Config, log *logger.Logger) *Service {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.RPS <= 0 {
		cfg.RPS = def.RPS
	}
	if cfg.CallTimeout <= 0 {
		tries := time.Duration(cfg.MaxRetries + 1)
		cfg.CallTimeout = 2 * tries * (cfg.Timeout + 10*cfg.Backoff)
	}
	return &Service{
		completer: completer,
		prompts:   prompts,
		cache:     cache,
		cfg:       cfg,
		workers:   semaphore.NewWeighted(int64(cfg.Workers)),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		log:       log.With("service", "GradingService"),
	}
}

// Grade scores an answer. Identical submissions within the cache TTL return
// the stored verdict without calling the provider, and identical submissions
// in flight share one provider call. The shared call is detached from any
// single caller, so a caller that gives up only abandons its own wait. Any
// failure is reported as ErrGradingUnavailable.
func (s *Service) Grade(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGradingUnavailable, err)
	}
	key := CacheKey(req.StatementID, req.Technique.ID, req.Answer)
	if res, ok := s.cache.Get(ctx, key); ok {
		res.Cached = true
		return res, nil
	}

	ch := s.inflight.DoChan(key, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CallTimeout)
		defer cancel()

		if res, ok := s.cache.Get(callCtx, key); ok {
			res.Cached = true
			return res, nil
		}
		res, err := s.grade(callCtx, req)
		if err != nil {
			return nil, err
		}
		s.cache.Set(callCtx, key, res)
		return res, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrGradingUnavailable, ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*Result)
		return &res, nil
	}
}

func (s *Service) grade(ctx context.Context, req Request) (*Result, error) {
	system, user, err := s.prompts.Render(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGradingUnavailable, err)
	}

	if err := s.workers.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGradingUnavailable, err)
	}
	defer s.workers.Release(1)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.Backoff
	b.MaxInterval = 10 * s.cfg.Backoff

	try := 0
	raw, err := backoff.Retry(ctx, func() (string, error) {
		try++
		if err := s.limiter.Wait(ctx); err != nil {
			return "", backoff.Permanent(err)
		}
		tryCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()

		out, err := s.completer.Complete(tryCtx, system, user)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, ai.ErrTimeout) || errors.Is(err, ai.ErrUnavailable) {
			s.log.Warn("grading try failed", "try", try, "technique_id", req.Technique.ID, "error", err)
			return "", err
		}
		return "", backoff.Permanent(err)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(s.cfg.MaxRetries+1)))
	if err != nil {
		s.log.Error("grading failed", "tries", try, "technique_id", req.Technique.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrGradingUnavailable, err)
	}

	res, err := ParseResult(raw)
	if err != nil {
		s.log.Error("grading response rejected", "technique_id", req.Technique.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrGradingUnavailable, err)
	}
	return res, nil
}

// Encouragement returns a short motivational line for a score
func Encouragement(score float64) string {
	switch {
	case score >= 90:
		return "Excellent work, that is a textbook reframe!"
	case score >= 70:
		return "Good job, you are getting the hang of it."
	case score >= 50:
		return "Not bad, a little more precision and you are there."
	default:
		return "Keep practicing, every attempt sharpens the skill."
	}
}
