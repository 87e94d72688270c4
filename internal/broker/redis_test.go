package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBrokerKeyLayout(t *testing.T) {
	b := &RedisBroker{prefix: "describo"}

	assert.Equal(t, "describo:queue", b.queueKey())
	assert.Equal(t, "describo:pending", b.pendingKey())
	assert.Equal(t, "describo:reserved:job-1", b.reservedKey("job-1"))
	assert.Equal(t, "describo:deliveries:job-1", b.deliveriesKey("job-1"))
}

func TestMaxDeliveries(t *testing.T) {
	b := &RedisBroker{maxDeliveries: 3}
	assert.Equal(t, 3, b.MaxDeliveries())
}
