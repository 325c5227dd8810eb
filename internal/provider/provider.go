// Package provider talks to the hosted chat models used when the manual has
// no answer.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/pbaille/qabot/internal/config"
)

// ErrMissingCredential means no API key was configured for the backend
var ErrMissingCredential = fmt.Errorf("%w: missing provider credential", config.ErrConfiguration)

// Request is one completion call
type Request struct {
	System   string // fixed instructions
	Context  string // manual rendered as Q/A lines
	Question string
}

// Provider turns a request into answer text
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// Error wraps every failure of a provider call
type Error struct {
	Backend string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsError reports whether err came from a provider call
func IsError(err error) bool {
	var pe *Error
	return errors.As(err, &pe)
}

// New builds the backend named in cfg. When the credential is missing it also
// returns a provider whose every call fails, so callers can keep running.
func New(cfg config.ProviderConfig) (Provider, error) {
	var backend string
	switch cfg.Backend {
	case "", "openai":
		backend = "openai"
	case "anthropic", "claude":
		backend = "anthropic"
	default:
		return nil, fmt.Errorf("%w: unknown provider backend %q", config.ErrConfiguration, cfg.Backend)
	}

	if cfg.APIKey == "" {
		return unavailable{backend: backend, err: ErrMissingCredential}, ErrMissingCredential
	}

	var p Provider
	if backend == "anthropic" {
		p = NewAnthropic(cfg.APIKey, cfg.Model, cfg.BaseURL)
	} else {
		p = NewOpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL)
	}
	if cfg.RequestsPerMinute > 0 {
		p = WithRateLimit(p, cfg.RequestsPerMinute)
	}
	return p, nil
}

// unavailable stands in for a backend that could not be configured
type unavailable struct {
	backend string
	err     error
}

func (u unavailable) Name() string { return u.backend }

func (u unavailable) Complete(ctx context.Context, req Request) (string, error) {
	return "", &Error{Backend: u.backend, Op: "complete", Err: u.err}
}

// systemPrompt joins the instructions with the context block
func systemPrompt(req Request) string {
	if req.Context == "" {
		return req.System
	}
	return req.System + "\n\n" + req.Context
}
