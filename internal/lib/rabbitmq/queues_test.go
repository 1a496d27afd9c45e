package rabbitmq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetNotificationQueues(t *testing.T) {
	queues := GetNotificationQueues()

	require.Len(t, queues, 2)

	assert.Equal(t, OperatorQueue, queues[0].QueueName)
	assert.Equal(t, RoutingKeyOperator, queues[0].RoutingKey)
	assert.Equal(t, UserQueue, queues[1].QueueName)
	assert.Equal(t, RoutingKeyUser, queues[1].RoutingKey)

	// Проверка уникальности QueueName
	seen := map[string]bool{}
	for _, q := range queues {
		assert.Falsef(t, seen[q.QueueName], "duplicate queue name: %s", q.QueueName)
		seen[q.QueueName] = true
	}
}
