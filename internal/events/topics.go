package events

// Topics emitted by the payment pipeline.
const (
	TopicOrderCreated     = "order.created"
	TopicOrderPaid        = "order.paid"
	TopicOrderCanceled    = "order.canceled"
	TopicPromotionApplied = "promotion.applied"
)
