// Package controller provides the programmable controller capabilities a
// ledger consults before transfers and approvals.
package controller

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/forkledger/internal/token"
	"github.com/jmerrifield20/forkledger/pkg/address"
)

// Config describes one controller entry in the server configuration. A
// controller either calls out to WebhookURL or applies a local block list.
type Config struct {
	Address    string   `mapstructure:"address"`
	WebhookURL string   `mapstructure:"webhook_url"`
	Secret     string   `mapstructure:"secret"`
	Timeout    string   `mapstructure:"timeout"`
	Blocked    []string `mapstructure:"blocked"`
}

// Directory maps controller addresses to their hooks. It satisfies
// token.HookDirectory.
type Directory struct {
	mu    sync.RWMutex
	hooks map[address.Address]token.Hook
}

// NewDirectory creates an empty Directory.
func NewDirectory() *Directory {
	return &Directory{hooks: make(map[address.Address]token.Hook)}
}

// FromConfig builds a Directory from configuration entries.
func FromConfig(cfgs []Config, logger *zap.Logger) (*Directory, error) {
	d := NewDirectory()
	for i, cfg := range cfgs {
		addr, err := address.Parse(cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("controllers[%d]: %w", i, err)
		}

		var h token.Hook
		switch {
		case cfg.WebhookURL != "":
			wh := NewWebhookHook(cfg.WebhookURL, cfg.Secret, logger)
			if cfg.Timeout != "" {
				timeout, err := time.ParseDuration(cfg.Timeout)
				if err != nil {
					return nil, fmt.Errorf("controllers[%d]: timeout: %w", i, err)
				}
				wh.SetTimeout(timeout)
			}
			h = wh
		default:
			p := NewPolicy()
			for _, raw := range cfg.Blocked {
				blocked, err := address.Parse(raw)
				if err != nil {
					return nil, fmt.Errorf("controllers[%d]: blocked: %w", i, err)
				}
				p.Block(blocked)
			}
			h = p
		}
		d.Register(addr, h)
	}
	return d, nil
}

// Register installs h for controller, replacing any previous hook.
func (d *Directory) Register(controller address.Address, h token.Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks[controller] = h
}

// Remove uninstalls the hook for controller.
func (d *Directory) Remove(controller address.Address) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.hooks, controller)
}

func (d *Directory) Lookup(controller address.Address) (token.Hook, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.hooks[controller]
	return h, ok
}

// Len returns the number of registered hooks.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.hooks)
}
