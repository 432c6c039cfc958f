package app

import (
	"fmt"

	"github.com/ochronus/gomonsterapi/internal/config"
	"github.com/ochronus/gomonsterapi/internal/models"
	"github.com/ochronus/gomonsterapi/internal/services/monster"
	"github.com/sirupsen/logrus"
)

// Container centralizes the core dependencies used across the application.
// It is intentionally small and uses interfaces so callers (and tests) can
// substitute implementations easily.
type Container struct {
	Config     *config.Config
	Logger     *logrus.Logger
	Client     monster.ClientAPI
	HTTPClient monster.Doer
}

// Option allows customizing the container during construction.
type Option func(*Container) error

// WithLogger overrides the default logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Container) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.Logger = logger
		return nil
	}
}

// WithClient overrides the default MonsterAPI client.
func WithClient(client monster.ClientAPI) Option {
	return func(c *Container) error {
		if client == nil {
			return fmt.Errorf("monster client cannot be nil")
		}
		c.Client = client
		return nil
	}
}

// WithHTTPClient sets the transport the default client is built with.
func WithHTTPClient(doer monster.Doer) Option {
	return func(c *Container) error {
		if doer == nil {
			return fmt.Errorf("http client cannot be nil")
		}
		c.HTTPClient = doer
		return nil
	}
}

// NewContainer builds a Container with sensible defaults derived from cfg.
// Options can be supplied to override specific dependencies (useful in tests).
func NewContainer(cfg *config.Config, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	container := &Container{
		Config: cfg,
		Logger: buildDefaultLogger(cfg.Loglevel),
	}

	// Apply options early so tests can inject mocks before defaults are created.
	for _, opt := range opts {
		if err := opt(container); err != nil {
			return nil, err
		}
	}

	if container.Client == nil {
		container.Client = buildClient(cfg, container.Logger, container.HTTPClient)
	}

	return container, nil
}

// CheckParams validates params for model when validate_params is enabled.
func (c *Container) CheckParams(model string, params any) error {
	if !c.Config.ValidateParams {
		return nil
	}
	return models.Check(model, params)
}

func buildDefaultLogger(levelStr string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func buildClient(cfg *config.Config, logger *logrus.Logger, doer monster.Doer) *monster.Client {
	opts := []monster.Option{
		monster.WithBaseURL(cfg.BaseURL),
		monster.WithPollInterval(cfg.PollEvery()),
		monster.WithTimeout(cfg.WaitTimeout()),
		monster.WithMaxUploadSize(cfg.MaxUploadSize()),
		monster.WithPresignEndpoints(cfg.Upload.PresignURL, cfg.Upload.FileURLURL, cfg.Upload.Bucket),
		monster.WithLogger(logger),
	}
	if doer != nil {
		opts = append(opts, monster.WithHTTPClient(doer))
	}
	return monster.NewClient(cfg.APIKey, opts...)
}
