package fuleeca

import (
	"context"
	"fmt"
	"io"
	"log"
)

// Client provides a high-level API for FuLeeca key recovery.
type Client struct {
	parser  SampleParser
	bias    BiasSource
	profile Profile
	config  AttackConfig
	logger  *log.Logger
}

// NewClient creates a new client with default settings: CSV samples and bias
// tables read from the "data" directory.
func NewClient() *Client {
	return &Client{
		parser: &CSVParser{},
		bias:   BiasDir{Dir: "data"},
		config: DefaultAttackConfig(),
		logger: log.New(io.Discard, "", 0),
	}
}

// WithParser sets a custom sample parser.
func (c *Client) WithParser(parser SampleParser) *Client {
	c.parser = parser
	return c
}

// WithBiasSource sets where bias tables are loaded from.
func (c *Client) WithBiasSource(source BiasSource) *Client {
	c.bias = source
	return c
}

// WithProfile sets the typical key profile. Without one the profile is taken
// from the reference key in the sample source.
func (c *Client) WithProfile(profile Profile) *Client {
	c.profile = profile
	return c
}

// WithConfig sets the attack configuration.
func (c *Client) WithConfig(config AttackConfig) *Client {
	c.config = config
	return c
}

// WithLogger sets the progress logger.
func (c *Client) WithLogger(logger *log.Logger) *Client {
	c.logger = logger
	return c
}

// RecoverKey runs the attack on a sample file for a security category.
//
// Args:
//   - ctx: Context for cancellation.
//   - source: Path to the sample file.
//   - category: FuLeeca security category (1, 3 or 5).
//
// Returns:
//   - RecoveryResult, also when the attack is exhausted; error only for
//     invalid input or cancellation.
func (c *Client) RecoverKey(ctx context.Context, source string, category int) (*RecoveryResult, error) {
	params, err := ParametersForCategory(category)
	if err != nil {
		return nil, err
	}
	return c.RecoverKeyWithParameters(ctx, source, params)
}

// RecoverKeyWithParameters runs the attack on a sample file with a custom
// parameter set.
func (c *Client) RecoverKeyWithParameters(ctx context.Context, source string, params Parameters) (*RecoveryResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	set, err := c.parser.ParseSamples(source, params)
	if err != nil {
		return nil, fmt.Errorf("failed to parse samples: %w", err)
	}
	return c.RecoverKeyFromSamples(ctx, set, params)
}

// RecoverKeyFromSamples runs the attack on an in-memory sample set.
func (c *Client) RecoverKeyFromSamples(ctx context.Context, set *SampleSet, params Parameters) (*RecoveryResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	bias, err := c.bias.BiasTable(params.NHalf())
	if err != nil {
		return nil, fmt.Errorf("failed to load bias table: %w", err)
	}
	return NewAttack(params, bias, c.profile).
		WithConfig(c.config).
		WithLogger(c.logger).
		Run(ctx, set)
}
