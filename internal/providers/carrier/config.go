package carrier

import (
	"strings"
	"time"
)

const (
	DefaultLoginURL = "https://sbcng.sewan.be/api/login"
	DefaultCDRURL   = "https://sbcng.sewan.be/api/cdr/"
	DefaultDIDURL   = "https://sbcng.sewan.be/api/dids/"
	DefaultBaseURL  = "https://sbcng.sewan.be"
)

// Config points the client at a carrier tenant.
type Config struct {
	Username          string
	Password          string
	LoginURL          string
	CDRURL            string
	DIDURL            string
	BaseURL           string
	RequestsPerSecond float64
	HTTPTimeout       time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.LoginURL) == "" {
		c.LoginURL = DefaultLoginURL
	}
	if strings.TrimSpace(c.CDRURL) == "" {
		c.CDRURL = DefaultCDRURL
	}
	if strings.TrimSpace(c.DIDURL) == "" {
		c.DIDURL = DefaultDIDURL
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 2 * time.Minute
	}
	return c
}

// PollPolicy bounds the wait for an export to become downloadable. The wait
// before attempt n+1 is min(n*Step, MaxWait); polling stops once Timeout has
// elapsed since the first attempt.
type PollPolicy struct {
	Step    time.Duration
	MaxWait time.Duration
	Timeout time.Duration
}

func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Step:    time.Second,
		MaxWait: 10 * time.Second,
		Timeout: 10 * time.Minute,
	}
}

func (p PollPolicy) withDefaults() PollPolicy {
	def := DefaultPollPolicy()
	if p.Step <= 0 {
		p.Step = def.Step
	}
	if p.MaxWait <= 0 {
		p.MaxWait = def.MaxWait
	}
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
	return p
}

// Delay returns the wait after the given 1-based attempt.
func (p PollPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(attempt) * p.Step
	if d > p.MaxWait {
		return p.MaxWait
	}
	return d
}
