package room

import (
	"time"

	"go.uber.org/zap"

	"okey/internal/bot"
	"okey/internal/tiles"
)

// A room has at most one pending bot task, because only one seat acts at a
// time. Each task gets a registry-wide token; a timer whose token no longer
// matches its room (cancelled, superseded, or the room was deleted and the
// code reused) does nothing.

// scheduleBot queues a turn for the acting seat if it is a bot.
func (r *Registry) scheduleBot(rm *Room) {
	if r.closed || rm.State != StatePlaying {
		return
	}
	p := rm.Current()
	if p == nil || !p.IsBot {
		return
	}

	r.cancelBot(rm)
	r.lastTask++
	task := r.lastTask
	code, botID := rm.ID, p.ID
	rm.botTask = task
	rm.botTimer = time.AfterFunc(r.drawDelay, func() {
		r.botDraw(code, botID, task)
	})
	r.log.Debug("bot turn scheduled", zap.String("room", code), zap.String("bot", botID), zap.Uint64("task", task))
}

func (r *Registry) cancelBot(rm *Room) {
	if rm.botTimer != nil {
		rm.botTimer.Stop()
		rm.botTimer = nil
	}
	rm.botTask = 0
}

// botTurn re-reads the room at fire time. It reports false when the room is
// gone, no longer playing, the task was replaced, or the turn moved on.
func (r *Registry) botTurn(code, botID string, task uint64) (*Room, int, bool) {
	if r.closed {
		return nil, 0, false
	}
	rm, ok := r.store.Get(code)
	if !ok || rm.botTask != task || rm.State != StatePlaying {
		return nil, 0, false
	}
	p := rm.Current()
	if p == nil || !p.IsBot || p.ID != botID {
		return nil, 0, false
	}
	return rm, rm.TurnIndex, true
}

func (r *Registry) botDraw(code, botID string, task uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, seat, ok := r.botTurn(code, botID, task)
	if !ok {
		r.log.Debug("stale bot draw ignored", zap.String("room", code), zap.Uint64("task", task))
		return
	}

	// The opening dealer already holds 22 and goes straight to its discard.
	var drawn *tiles.Tile
	if len(rm.Players[seat].Hand) < tiles.DealerHand {
		source := SourceDeck
		if len(rm.Deck) == 0 {
			source = SourceDiscard
		}
		t, err := r.draw(rm, seat, source)
		if err != nil {
			r.log.Warn("bot cannot draw", zap.String("room", code), zap.String("bot", botID), zap.Error(err))
			rm.botTask = 0
			rm.botTimer = nil
			return
		}
		drawn = &t
		r.publish(Event{Kind: EventBotDraw, RoomCode: code, State: rm.State, PlayerID: botID, Source: source, Tile: drawn})
	}

	rm.botTimer = time.AfterFunc(r.discardDelay, func() {
		r.botDiscard(code, botID, task, drawn)
	})
}

func (r *Registry) botDiscard(code, botID string, task uint64, drawn *tiles.Tile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, seat, ok := r.botTurn(code, botID, task)
	if !ok {
		r.log.Debug("stale bot discard ignored", zap.String("room", code), zap.Uint64("task", task))
		return
	}
	rm.botTask = 0
	rm.botTimer = nil

	hand := rm.Players[seat].Hand
	if len(hand) != tiles.DealerHand {
		r.log.Warn("bot has nothing to discard", zap.String("room", code), zap.String("bot", botID), zap.Int("hand", len(hand)))
		return
	}
	idx, err := r.strategy.ChooseDiscard(hand, r.rng)
	if err != nil || idx < 0 || idx >= len(hand) {
		r.log.Warn("bot strategy failed, discarding at random",
			zap.String("room", code),
			zap.String("strategy", r.strategy.Name()),
			zap.Int("index", idx),
			zap.Error(err),
		)
		idx, _ = bot.Random{}.ChooseDiscard(hand, r.rng)
	}

	t := r.discard(rm, seat, idx)
	r.publish(Event{
		Kind:      EventBotMove,
		RoomCode:  code,
		State:     rm.State,
		PlayerID:  botID,
		Tile:      &t,
		DrawnTile: drawn,
		NextTurn:  rm.TurnIndex,
	})
	r.scheduleBot(rm)
}
