package factory

import (
	"errors"
	"testing"

	"Go2NetSketch/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func types(names ...string) *config.Config {
	return &config.Config{Aggregator: config.AggregatorConfig{Types: names}}
}

func TestCreate(t *testing.T) {
	calls := 0
	RegisterAggregator("registry_test_ok", func(*config.Config) (*TaskGroup, error) {
		calls++
		return &TaskGroup{}, nil
	})
	RegisterAggregator("registry_test_fail", func(*config.Config) (*TaskGroup, error) {
		return nil, errors.New("boom")
	})
	assert.Subset(t, Registered(), []string{"registry_test_fail", "registry_test_ok"})

	groups, err := Create(types("registry_test_ok", "registry_test_ok"))
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "registry_test_ok", groups[0].Type)
	assert.Equal(t, 1, calls)

	_, err = Create(types("registry_test_fail"))
	assert.ErrorContains(t, err, "boom")

	_, err = Create(types("nope"))
	assert.ErrorIs(t, err, ErrUnknownAggregator)
	assert.ErrorContains(t, err, "unknown aggregator type")

	assert.Panics(t, func() {
		RegisterAggregator("registry_test_ok", nil)
	})
}
