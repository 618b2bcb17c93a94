package threading

import (
	"github.com/inboundly/mailcore/internal/enum"
	"github.com/inboundly/mailcore/internal/models"
	"github.com/inboundly/mailcore/internal/utils"
)

// ReferenceSet is the normalized threading input every matching decision runs
// on. References lists ancestors oldest first, deduplicated, with InReplyTo
// folded in at the end when the source stored it separately.
type ReferenceSet struct {
	MessageID         string
	InReplyTo         string
	References        []string
	NormalizedSubject string
}

// MessageHeaders is the tagged-variant extractor input: construct it from an
// inbound or an outbound record, never from loose fields.
type MessageHeaders struct {
	direction  enum.EmailDirection
	messageID  string
	inReplyTo  string
	references []string
	subject    string
}

func InboundHeaders(e *models.InboundEmail) MessageHeaders {
	if e == nil {
		return MessageHeaders{direction: enum.EmailInbound}
	}
	return MessageHeaders{
		direction:  enum.EmailInbound,
		messageID:  e.MessageID,
		inReplyTo:  e.InReplyTo,
		references: e.References,
		subject:    e.Subject,
	}
}

func OutboundHeaders(e *models.OutboundEmail) MessageHeaders {
	if e == nil {
		return MessageHeaders{direction: enum.EmailOutbound}
	}
	return MessageHeaders{
		direction:  enum.EmailOutbound,
		messageID:  e.MessageID,
		inReplyTo:  e.InReplyTo,
		references: e.References,
		subject:    e.Subject,
	}
}

// ExtractReferences normalizes the threading headers of a message. Malformed
// or absent headers produce empty fields, never an error: threading degrades
// to a new single-message thread rather than blocking ingestion.
func ExtractReferences(h MessageHeaders) ReferenceSet {
	set := ReferenceSet{
		MessageID:         utils.NormalizeMessageID(h.messageID),
		InReplyTo:         utils.NormalizeMessageID(h.inReplyTo),
		NormalizedSubject: utils.NormalizeEmailSubject(h.subject),
	}

	seen := make(map[string]struct{}, len(h.references)+1)
	for _, ref := range h.references {
		id := utils.NormalizeMessageID(ref)
		if id == "" || id == set.MessageID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		set.References = append(set.References, id)
	}

	// In-Reply-To is the immediate parent; well-behaved clients repeat it as
	// the last References entry, so fold it in when missing.
	if set.InReplyTo != "" && set.InReplyTo != set.MessageID {
		if _, ok := seen[set.InReplyTo]; !ok {
			set.References = append(set.References, set.InReplyTo)
		}
	}

	return set
}

// HasParentLinks reports whether the message claims any ancestor at all.
func (s ReferenceSet) HasParentLinks() bool {
	return len(s.References) > 0
}
