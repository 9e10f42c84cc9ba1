package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePagePath(t *testing.T) {
	cases := map[string]string{
		"":             "/",
		"/":            "/",
		"list":         "/list",
		"/list/":       "/list",
		"//list//42":   "/list/42",
		"/a/./b/../c":  "/a/c",
		"/../../etc":   "/etc",
		" /settings ":  "/settings",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePagePath(in), in)
	}
}

func TestResolvePricing(t *testing.T) {
	assert.Equal(t, Pricing{}, ResolvePricing("gemma3:12b"))
	assert.Greater(t, ResolvePricing("gpt-4o-mini").InputPerM, 0.0)
}

func TestRetryPolicyNext(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := RetryPolicy{MaxAttempts: 3, Backoff: 30 * time.Second}

	at, exhausted := p.Next(1, now)
	assert.False(t, exhausted)
	assert.Equal(t, now.Add(30*time.Second), at)

	at, exhausted = p.Next(2, now)
	assert.False(t, exhausted)
	assert.Equal(t, now.Add(time.Minute), at)

	_, exhausted = p.Next(3, now)
	assert.True(t, exhausted)
}
