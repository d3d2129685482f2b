package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ReqLimitHeader carries the request budget the Vulners API grants.
const ReqLimitHeader = "X-Vulners-Ratelimit-Reqlimit"

// budgetWindow is divided by the granted request limit to get the pause
// between calls.
const budgetWindow = 2 * time.Second

// guardTransport spaces requests according to the API's advertised budget
// and stops calling an API that keeps failing at the transport level.
type guardTransport struct {
	next     http.RoundTripper
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	minDelay time.Duration
	log      *zap.Logger
}

func newGuardTransport(next http.RoundTripper, minDelay time.Duration, failures uint32, openFor time.Duration, log *zap.Logger) *guardTransport {
	g := &guardTransport{
		next:     next,
		limiter:  rate.NewLimiter(rate.Every(minDelay), 1),
		minDelay: minDelay,
		log:      log,
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "vulners",
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed",
				zap.String("breaker", name), zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})
	return g
}

// RoundTrip implements http.RoundTripper.
func (g *guardTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := g.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	out, err := g.breaker.Execute(func() (any, error) {
		return g.next.RoundTrip(req)
	})
	if err != nil {
		return nil, err
	}
	resp := out.(*http.Response)
	g.adjust(resp.Header.Get(ReqLimitHeader))
	return resp, nil
}

// adjust sets the pause before the next request from the granted limit.
// A missing or unusable value falls back to the configured minimum delay.
func (g *guardTransport) adjust(reqLimit string) {
	interval := g.minDelay
	if n, err := strconv.ParseFloat(reqLimit, 64); err == nil && n > 0 {
		interval = time.Duration(float64(budgetWindow) / n)
	}
	g.limiter.SetLimit(rate.Every(interval))
	g.log.Debug("Throttle adjusted", zap.String("reqlimit", reqLimit), zap.Duration("interval", interval))
}
