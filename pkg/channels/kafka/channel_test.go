package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, ParseBrokers(" k1:9092, ,k2:9092 "))
	assert.Empty(t, ParseBrokers(""))
}

func TestCreateChannel_RequiresBrokers(t *testing.T) {
	_, _, err := CreateChannel(watermill.NopLogger{}, nil, "storeflow")
	require.ErrorIs(t, err, ErrNoBrokers)
}
