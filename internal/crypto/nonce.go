package crypto

import (
	"fmt"
	"time"
)

// NonceGenerator derives the OAuth state value for an action.
//
// The nonce is an HMAC over the action name and the current time tick, so
// the value handed out when building the link URL is the same value expected
// when LinkedIn redirects back, without persisting anything. A nonce changes
// once per tick.
type NonceGenerator struct {
	key    []byte
	action string
	tick   time.Duration
	now    func() time.Time
}

// NewNonceGenerator creates a nonce generator. tick must be positive.
func NewNonceGenerator(key []byte, action string, tick time.Duration) (*NonceGenerator, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("nonce key is required")
	}
	if tick <= 0 {
		return nil, fmt.Errorf("nonce tick must be positive")
	}
	return &NonceGenerator{
		key:    key,
		action: action,
		tick:   tick,
		now:    time.Now,
	}, nil
}

// Current returns the nonce for the current tick
func (g *NonceGenerator) Current() string {
	return g.at(g.now())
}

func (g *NonceGenerator) at(t time.Time) string {
	tick := t.UnixNano() / int64(g.tick)
	return SignData(fmt.Sprintf("%s:%d", g.action, tick), g.key)
}
