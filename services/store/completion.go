package store

import (
	"context"

	"lampcode-go/bus"
	"lampcode-go/drivers/flash"
	"lampcode-go/types"
	"lampcode-go/x/logx"
)

var (
	topicFlashEvent = bus.T("flash", "event")
	topicFlashStats = bus.T("flash", "stats")
)

// pumpEvents forwards primitive completions to flash/event/<op>.
func pumpEvents(ctx context.Context, conn *bus.Connection, ev *flash.Events, l *logx.Logger) {
	var dropped uint32
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-ev.C():
			conn.Publish(conn.NewMessage(topicFlashEvent.Append(e.Op.String()), e, false))
			if d := ev.Dropped(); d != dropped {
				l.Warn("flash events dropped", logx.U32("total", d))
				dropped = d
			}
		}
	}
}

// completionHandler observes flash completions. It only logs and counts;
// store state is never touched from here.
type completionHandler struct {
	log   *logx.Logger
	stats types.FlashStats
}

func newCompletionHandler(l *logx.Logger) *completionHandler {
	return &completionHandler{log: l}
}

func (h *completionHandler) run(ctx context.Context, conn *bus.Connection) {
	sub := conn.Subscribe(topicFlashEvent.Append("+"))
	defer conn.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sub.Channel():
			e, ok := msg.Payload.(flash.Event)
			if !ok {
				continue
			}
			h.handle(e)
			conn.Publish(conn.NewMessage(topicFlashStats, h.stats, true))
		}
	}
}

func (h *completionHandler) handle(e flash.Event) {
	switch e.Op {
	case flash.OpRead:
		h.stats.Reads++
	case flash.OpWrite:
		h.stats.Writes++
	case flash.OpErase:
		h.stats.Erases++
	}
	if e.Err != nil {
		h.stats.Failures++
		h.log.Warn(e.Op.String()+" failed", logx.Hex("addr", e.Addr), logx.U32("len", e.Len), logx.Err(e.Err))
		return
	}
	switch e.Op {
	case flash.OpErase:
		h.log.Info("erase", logx.Hex("addr", e.Addr), logx.U32("blocks", e.Len))
	case flash.OpWrite:
		h.log.Debug("write", logx.Hex("addr", e.Addr), logx.U32("len", e.Len))
	}
}
