package dto

import (
	"time"

	"github.com/inboundly/mailcore/internal/enum"
)

// ThreadResolution is the outcome of resolving one message into a thread.
type ThreadResolution struct {
	ThreadID       string `json:"threadId"`
	ThreadPosition int    `json:"threadPosition"`
	IsNewThread    bool   `json:"isNewThread"`
}

// ThreadMessage is one entry of the thread read model, merging inbound and
// outbound records into a single sequence ordered by thread position.
type ThreadMessage struct {
	ID             string              `json:"id"`
	Direction      enum.EmailDirection `json:"direction"`
	MessageID      string              `json:"messageId"`
	Subject        string              `json:"subject"`
	FromAddress    string              `json:"fromAddress"`
	ToAddresses    []string            `json:"toAddresses"`
	SentAt         time.Time           `json:"sentAt"`
	ThreadPosition int                 `json:"threadPosition"`
	DeliveryStatus enum.DeliveryStatus `json:"deliveryStatus,omitempty"`
}

type ThreadView struct {
	ID            string          `json:"id"`
	RootMessageID string          `json:"rootMessageId"`
	Subject       string          `json:"subject"`
	Participants  []string        `json:"participants"`
	MessageCount  int             `json:"messageCount"`
	LastMessageAt *time.Time      `json:"lastMessageAt"`
	Messages      []ThreadMessage `json:"messages"`
}
