//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package runner

import "time"

// Config controls how a Runner retries failed runs.
type Config struct {
	// RetryCount is the number of times a run failing on an external call
	// is resumed from its failure point. Zero disables retries.
	RetryCount int `json:"retry_count"`

	// RetryDelay is the initial delay between retries. It grows
	// exponentially up to MaxRetryDelay.
	RetryDelay time.Duration `json:"retry_delay"`

	// MaxRetryDelay caps the delay between retries.
	MaxRetryDelay time.Duration `json:"max_retry_delay"`

	// Timeout bounds one Run or Resume call including its retries. Zero
	// means no timeout.
	Timeout time.Duration `json:"timeout"`
}

// DefaultConfig returns a default runner configuration.
func DefaultConfig() Config {
	return Config{
		RetryCount:    2,
		RetryDelay:    500 * time.Millisecond,
		MaxRetryDelay: 10 * time.Second,
	}
}

// WithTimeout sets the timeout for the config.
func (c Config) WithTimeout(timeout time.Duration) Config {
	c.Timeout = timeout
	return c
}

// WithRetry sets the retry parameters.
func (c Config) WithRetry(count int, delay time.Duration) Config {
	c.RetryCount = count
	c.RetryDelay = delay
	return c
}

// WithMaxRetryDelay sets the cap of the retry delay.
func (c Config) WithMaxRetryDelay(d time.Duration) Config {
	c.MaxRetryDelay = d
	return c
}
