package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBrokers(t *testing.T) {
	assert.Nil(t, ParseBrokers(""))
	assert.Nil(t, ParseBrokers(" , "))
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers("a:9092, b:9092,"))
}

func TestCreateChannel_NoBrokers(t *testing.T) {
	_, _, err := CreateChannel(watermill.NopLogger{}, "stepflow", nil)
	require.ErrorIs(t, err, ErrNoBrokers)
}
