package messaging

import (
	"context"
	"strings"
	"sync"

	"github.com/BTreeMap/ClinicIntake/internal/models"
)

// MockService records messages in memory. Err, when set, fails every send.
type MockService struct {
	mu      sync.Mutex
	channel models.Channel
	Err     error
	Sent    []SentMessage
}

// SentMessage is one recorded delivery.
type SentMessage struct {
	To  string
	Msg Message
}

var _ Service = (*MockService)(nil)

func NewMockService(channel models.Channel) *MockService {
	return &MockService{channel: channel}
}

func (m *MockService) Channel() models.Channel { return m.channel }

func (m *MockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	r := strings.TrimSpace(recipient)
	if r == "" {
		return "", ErrInvalidRecipient
	}
	return r, nil
}

func (m *MockService) SendMessage(ctx context.Context, to string, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, SentMessage{To: to, Msg: msg})
	return nil
}

// Messages returns a copy of the recorded deliveries.
func (m *MockService) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.Sent))
	copy(out, m.Sent)
	return out
}

// SetErr changes the failure mode under the lock.
func (m *MockService) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}
