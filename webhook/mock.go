package webhook

import (
	"context"
	"log/slog"

	"raid-status-notifier/pkg/status"
)

// MockClient logs reports instead of sending them, for local development.
type MockClient struct {
	logger *slog.Logger
	nextID uint64
}

// NewMockClient creates a new mock webhook client.
func NewMockClient(logger *slog.Logger) *MockClient {
	return &MockClient{
		logger: logger,
		nextID: 1,
	}
}

// Create logs the report and hands out the next id.
func (m *MockClient) Create(ctx context.Context, report status.Report) (uint64, error) {
	id := m.nextID
	m.nextID++
	m.logger.Info("MOCK WEBHOOK CREATE",
		"message_id", id,
		"title", report.Title,
		"sections", len(report.Sections),
		"footer", report.Footer)
	return id, nil
}

// Edit logs the report.
func (m *MockClient) Edit(ctx context.Context, id uint64, report status.Report) error {
	for _, s := range report.Sections {
		m.logger.Debug("MOCK WEBHOOK SECTION", "message_id", id, "name", s.Name, "value", s.Value)
	}
	m.logger.Info("MOCK WEBHOOK EDIT",
		"message_id", id,
		"title", report.Title,
		"sections", len(report.Sections),
		"footer", report.Footer)
	return nil
}
