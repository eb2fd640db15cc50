// Package messaging delivers verification codes and staff notices over SMS and email.
package messaging

import (
	"context"
	"errors"

	"github.com/BTreeMap/ClinicIntake/internal/models"
)

// ErrInvalidRecipient is returned when a destination cannot be canonicalized.
var ErrInvalidRecipient = errors.New("invalid recipient")

// Message is the content handed to a Service. Subject and HTML are ignored by
// channels that cannot carry them.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// Channel reports which delivery channel this service uses.
	Channel() models.Channel

	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	// Each service applies its own rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to an already canonical recipient.
	SendMessage(ctx context.Context, to string, msg Message) error
}
