package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
)

// Bridge hands scheduler results to the running program. It exists because
// schedulers are built before the program that receives their messages.
type Bridge struct {
	mu   sync.RWMutex
	send func(tea.Msg)
}

func NewBridge() *Bridge { return &Bridge{} }

// Attach routes messages to p.
func (b *Bridge) Attach(p *tea.Program) { b.AttachFunc(p.Send) }

func (b *Bridge) AttachFunc(send func(tea.Msg)) {
	b.mu.Lock()
	b.send = send
	b.mu.Unlock()
}

func (b *Bridge) Send(msg tea.Msg) {
	b.mu.RLock()
	send := b.send
	b.mu.RUnlock()
	if send == nil {
		log.Warnf("dropping %T: program not attached", msg)
		return
	}
	send(msg)
}
