package ddc

import (
	"context"
	"sync"

	"dimctl/internal/errors"
	"dimctl/internal/logger"
)

// multiTransport fans detection out over several transports and routes
// reads and writes to whichever transport discovered the display. The
// controller never learns which adapter backs a given monitor id.
type multiTransport struct {
	transports []Transport

	mu    sync.Mutex
	owner map[string]Transport
}

// NewMultiTransport combines transports into one. Detection failures of
// a single transport are logged and skipped; detection only fails when
// every transport fails.
func NewMultiTransport(transports ...Transport) Transport {
	return &multiTransport{
		transports: transports,
		owner:      make(map[string]Transport),
	}
}

func (m *multiTransport) Detect(ctx context.Context) ([]Display, error) {
	errFactory := errors.New()

	var all []Display
	owner := make(map[string]Transport)
	failures := 0

	for _, t := range m.transports {
		displays, err := t.Detect(ctx)
		if err != nil {
			failures++
			logger.Warn().Err(err).Msg("display detection failed for transport")
			continue
		}
		for _, d := range displays {
			if _, dup := owner[d.ID]; dup {
				continue
			}
			owner[d.ID] = t
			all = append(all, d)
		}
	}

	if failures == len(m.transports) && failures > 0 {
		return nil, errFactory.New(ErrDetectFailed)
	}

	m.mu.Lock()
	m.owner = owner
	m.mu.Unlock()

	return all, nil
}

func (m *multiTransport) GetBrightness(ctx context.Context, id string) (int, error) {
	t, err := m.transportFor(id)
	if err != nil {
		return 0, err
	}

	return t.GetBrightness(ctx, id)
}

func (m *multiTransport) SetBrightness(ctx context.Context, id string, percent int) error {
	t, err := m.transportFor(id)
	if err != nil {
		return err
	}

	return t.SetBrightness(ctx, id, percent)
}

func (m *multiTransport) transportFor(id string) (Transport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.owner[id]
	if !ok {
		return nil, errors.New().WithData(ErrUnknownDisplay, id)
	}

	return t, nil
}
