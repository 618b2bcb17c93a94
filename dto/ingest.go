package dto

import "time"

// InboundMessage is the ingestion payload for a received email.
type InboundMessage struct {
	MessageID     string                 `json:"messageId"`
	InReplyTo     string                 `json:"inReplyTo"`
	References    []string               `json:"references"`
	Subject       string                 `json:"subject"`
	FromAddress   string                 `json:"fromAddress"`
	ToAddresses   []string               `json:"toAddresses"`
	CcAddresses   []string               `json:"ccAddresses"`
	ReceivedAt    time.Time              `json:"receivedAt"`
	RawStorageKey string                 `json:"rawStorageKey"`
	RawContent    string                 `json:"rawContent"`
	RawHeaders    map[string]interface{} `json:"rawHeaders"`
}

// OutboundMessage is the ingestion payload recorded when a send completes.
type OutboundMessage struct {
	MessageID   string    `json:"messageId"`
	InReplyTo   string    `json:"inReplyTo"`
	References  []string  `json:"references"`
	Subject     string    `json:"subject"`
	FromAddress string    `json:"fromAddress"`
	ToAddresses []string  `json:"toAddresses"`
	CcAddresses []string  `json:"ccAddresses"`
	SentAt      time.Time `json:"sentAt"`
}
