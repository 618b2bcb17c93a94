package enum

type EmailDirection string

const (
	EmailInbound  EmailDirection = "inbound"
	EmailOutbound EmailDirection = "outbound"
)

func (t EmailDirection) String() string {
	return string(t)
}

type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryBounced   DeliveryStatus = "bounced"
	DeliveryDeferred  DeliveryStatus = "deferred"
	DeliveryFailed    DeliveryStatus = "failed"
)

func (t DeliveryStatus) String() string {
	return string(t)
}

type BounceType string

const (
	// BounceNone marks a success DSN (2.x.x), a delivery confirmation rather
	// than a bounce.
	BounceNone         BounceType = "none"
	BounceHard         BounceType = "hard"
	BounceSoft         BounceType = "soft"
	BounceTransient    BounceType = "transient"
	BounceUndetermined BounceType = "undetermined"
)

func (t BounceType) String() string {
	return string(t)
}
