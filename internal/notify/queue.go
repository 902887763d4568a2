// Package notify hands notification facts to the downstream delivery
// worker over a queue. The queue interface points at an in-memory channel
// during development and AWS SQS in production without touching callers.
package notify

// Message is one queued notification envelope.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}
