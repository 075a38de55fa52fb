package events

// Topic constants for domain events emitted by the checkout service.
const (
	TopicCheckoutStarted   = "checkout.started"
	TopicVoucherSelected   = "checkout.voucher_selected"
	TopicOrderSubmitted    = "order.submitted"
	TopicOrderConfirmed    = "order.confirmed"
	TopicSubmissionFailed  = "order.submission_failed"
	TopicCartCleanupQueued = "cart.cleanup_queued"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicCheckoutStarted,
		TopicVoucherSelected,
		TopicOrderSubmitted,
		TopicOrderConfirmed,
		TopicSubmissionFailed,
		TopicCartCleanupQueued,
	}
}
