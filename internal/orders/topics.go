package orders

const (
	TopicOrderCreated           = "order.created"
	TopicOrderConfirmed         = "order.confirmed"
	TopicOrderFailed            = "order.failed"
	TopicOrderCancelled         = "order.cancelled"
	TopicOrderStatusChanged     = "order.status.changed"
	TopicOrderItemStatusChanged = "order.item.status.changed"
)

var topicByEvent = map[string]string{
	EventOrderCreated:           TopicOrderCreated,
	EventOrderConfirmed:         TopicOrderConfirmed,
	EventOrderFailed:            TopicOrderFailed,
	EventOrderCancelled:         TopicOrderCancelled,
	EventOrderStatusChanged:     TopicOrderStatusChanged,
	EventOrderItemStatusChanged: TopicOrderItemStatusChanged,
}

func TopicFor(eventType string) (string, bool) {
	t, ok := topicByEvent[eventType]
	return t, ok
}

// Topics lists every lifecycle topic, for consumers that follow all of them.
func Topics() []string {
	return []string{
		TopicOrderCreated, TopicOrderConfirmed, TopicOrderFailed,
		TopicOrderCancelled, TopicOrderStatusChanged, TopicOrderItemStatusChanged,
	}
}

// Partition key = order_id so every event of one order keeps its order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
