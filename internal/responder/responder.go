// Package responder generates reply bodies for emails.
package responder

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Generator produces the text of a reply to one email.
type Generator interface {
	Generate(ctx context.Context, subject, body string) (string, error)
}

// Kind names a Generator implementation.
type Kind string

const (
	KindMock   Kind = "mock"
	KindOpenAI Kind = "openai"
)

// Config selects and configures a Generator.
type Config struct {
	Kind Kind

	// Mock settings.
	MinDelay   time.Duration
	MaxDelay   time.Duration
	DelayScale time.Duration

	// OpenAI settings.
	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string
	StrictErrors  bool
}

// New returns the Generator selected by cfg.Kind.
func New(cfg Config, logger *slog.Logger) (Generator, error) {
	switch cfg.Kind {
	case KindMock, "":
		return NewMock(cfg.MinDelay, cfg.MaxDelay, cfg.DelayScale), nil
	case KindOpenAI:
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		o := NewOpenAI(cfg.OpenAIKey, logger)
		if cfg.OpenAIModel != "" {
			o.Model = cfg.OpenAIModel
		}
		if cfg.OpenAIBaseURL != "" {
			o.BaseURL = cfg.OpenAIBaseURL
		}
		o.StrictErrors = cfg.StrictErrors
		return o, nil
	}
	return nil, fmt.Errorf("unknown response provider %q (want mock or openai)", cfg.Kind)
}

// format builds the reply text shared by every Generator.
func format(subject, text string) string {
	return fmt.Sprintf("Re: %s\n\n%s", subject, text)
}
