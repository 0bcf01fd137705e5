// internal/sender/mock.go
package sender

import (
	"context"
	"fmt"
	"math/rand"
)

// MockSender stands in for all three channels in local runs; it fails a
// configurable fraction of sends so the failure paths get exercised.
type MockSender struct {
	FailureRate float64 // 0..1
}

func (m *MockSender) attempt(kind, to string) error {
	if rand.Float64() < m.FailureRate {
		return fmt.Errorf("mock %s delivery to %s failed", kind, to)
	}
	return nil
}

func (m *MockSender) SendSMS(ctx context.Context, to, body string) error {
	return m.attempt("sms", to)
}

func (m *MockSender) PlaceRoboCall(ctx context.Context, to, script string, recordingID *int) error {
	return m.attempt("robocall", to)
}

func (m *MockSender) SendEmail(ctx context.Context, to, subject, html, text string) error {
	return m.attempt("email", to)
}

// MockRegistry wires the mock into every channel.
func MockRegistry(failureRate float64) Registry {
	m := &MockSender{FailureRate: failureRate}
	return Registry{SMS: m, Voice: m, Email: m}
}
