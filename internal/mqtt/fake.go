package mqtt

import (
	"github.com/sweeney/relay-clock/internal/cycle"
)

// FakePublisher keeps everything it is handed, together with the encoded
// payload, so tests can inspect both. PublishError fails every publish.
type FakePublisher struct {
	Reports        []cycle.Report
	Payloads       [][]byte
	SystemEvents   []SystemEvent
	SystemPayloads [][]byte

	PublishError error
	Connected    bool
	Closed       bool
}

// NewFakePublisher returns a connected FakePublisher.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Connected: true}
}

func (f *FakePublisher) Publish(rep cycle.Report) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatPayload(rep)
	if err != nil {
		return err
	}
	f.Reports = append(f.Reports, rep)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

func (f *FakePublisher) IsConnected() bool { return f.Connected }

// NopPublisher drops everything. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(cycle.Report) error      { return nil }
func (NopPublisher) PublishSystem(SystemEvent) error { return nil }
func (NopPublisher) Close() error                    { return nil }
func (NopPublisher) IsConnected() bool               { return false }
