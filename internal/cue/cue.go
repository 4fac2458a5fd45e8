// Package cue gives audible and visual feedback when recording starts and
// stops.
package cue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/waveform/internal/config"
)

const (
	recordingSummary = "Recording…"
	notifyTimeout    = 2 * time.Second
)

// Player emits start/stop cues asynchronously, one at a time.
type Player struct {
	cfg     config.CuesConfig
	logger  *slog.Logger
	emit    func(cueKind, string) error
	notify  func(ctx context.Context, replaceID uint32, summary string, timeoutMS int) (uint32, error)
	dismiss func(ctx context.Context, id uint32) error

	mu             sync.Mutex
	inflight       sync.WaitGroup
	notificationID uint32
}

// NewPlayer creates a cue player from config.
func NewPlayer(cfg config.CuesConfig, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Player{
		cfg:     cfg,
		logger:  logger,
		emit:    emitCue,
		notify:  desktopNotify,
		dismiss: desktopDismiss,
	}
}

// Started plays the start cue and shows the recording notification.
func (p *Player) Started(context.Context) {
	p.run(func() {
		p.playLocked(cueStart, p.cfg.StartFile)
		p.showLocked()
	})
}

// Stopped plays the stop cue and dismisses the recording notification.
func (p *Player) Stopped(context.Context) {
	p.run(func() {
		p.playLocked(cueStop, p.cfg.StopFile)
		p.hideLocked()
	})
}

// Wait blocks until queued cues finish.
func (p *Player) Wait() {
	p.inflight.Wait()
}

func (p *Player) run(fn func()) {
	if !p.cfg.Enable && !p.cfg.Notify {
		return
	}
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		p.mu.Lock()
		defer p.mu.Unlock()
		fn()
	}()
}

func (p *Player) playLocked(kind cueKind, file string) {
	if !p.cfg.Enable {
		return
	}
	if err := p.emit(kind, file); err != nil {
		p.logger.Debug("audio cue failed", "cue", kind.String(), "error", err.Error())
	}
}

func (p *Player) showLocked() {
	if !p.cfg.Notify {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	id, err := p.notify(ctx, p.notificationID, recordingSummary, p.cfg.NotifyTimeoutMS)
	if err != nil {
		p.logger.Debug("desktop notification failed", "error", err.Error())
		return
	}
	p.notificationID = id
}

func (p *Player) hideLocked() {
	if !p.cfg.Notify || p.notificationID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if err := p.dismiss(ctx, p.notificationID); err != nil {
		p.logger.Debug("desktop dismiss failed", "id", p.notificationID, "error", err.Error())
	}
	p.notificationID = 0
}
