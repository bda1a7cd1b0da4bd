// Package notify is the seam to the external notification collaborator. The
// core reports business outcomes (order accepted/filled/rejected, disconnect,
// sync completion) as plain text; the actual transport lives outside.
package notify

import (
	"go.uber.org/zap"
)

// Notifier is what the trading core talks to.
type Notifier interface {
	Notify(text string)
	NotifyImage(path, caption string)
}

// Provider delivers notifications over one transport.
type Provider interface {
	SendMessage(text string) error
	SendImage(path, caption string) error
}

// Manager fans notifications out to all registered providers. A failing
// provider is logged and never fails the trading path.
type Manager struct {
	log       *zap.Logger
	providers []Provider
}

// NewManager creates an empty manager.
func NewManager(log *zap.Logger) *Manager {
	return &Manager{log: log}
}

// AddProvider registers a transport.
func (m *Manager) AddProvider(p Provider) {
	m.providers = append(m.providers, p)
}

// Notify sends text to every provider.
func (m *Manager) Notify(text string) {
	for _, p := range m.providers {
		if err := p.SendMessage(text); err != nil {
			m.log.Error("notification send failed", zap.Error(err))
		}
	}
}

// NotifyImage sends an image artifact plus caption to every provider.
func (m *Manager) NotifyImage(path, caption string) {
	for _, p := range m.providers {
		if err := p.SendImage(path, caption); err != nil {
			m.log.Error("notification image send failed", zap.Error(err))
		}
	}
}

// LogProvider writes notifications to the process log. It is the default
// provider so alerts are never lost when no external transport is configured.
type LogProvider struct {
	Log *zap.Logger
}

func (p *LogProvider) SendMessage(text string) error {
	p.Log.Info("notification", zap.String("text", text))
	return nil
}

func (p *LogProvider) SendImage(path, caption string) error {
	p.Log.Info("notification image", zap.String("path", path), zap.String("caption", caption))
	return nil
}
