package service

import (
	"context"
	"strings"

	"github.com/ricochet1k/wamux/internal/autoreply"
	"github.com/ricochet1k/wamux/internal/domain"
	"github.com/ricochet1k/wamux/internal/session"
)

const statusBroadcastJID = "status@broadcast"

func (s *Supervisor) onInbound(rec *session.Record, gen uint64, msgs []domain.InboundMessage) {
	if len(msgs) == 0 {
		return
	}
	if !rec.Owns(gen) {
		s.log.Debug().Str("session_id", rec.ID).Int("count", len(msgs)).Msg("dropping messages from superseded attempt")
		return
	}

	compact := make([]domain.CompactMessage, len(msgs))
	for i, m := range msgs {
		compact[i] = domain.Compact(m)
	}
	identity := rec.AppendMessages(compact)

	for _, m := range compact {
		s.broadcaster.Broadcast(domain.NewMessageEvent(rec.ID, m))
	}

	for i, m := range msgs {
		text, ok := s.replyable(m, identity)
		if !ok {
			continue
		}
		chat := compact[i].From
		if !s.track() {
			return
		}
		go func() {
			defer s.wg.Done()
			s.autoReply(rec, gen, chat, text)
		}()
	}
}

// replyable returns the text to answer when m should get an automated reply.
func (s *Supervisor) replyable(m domain.InboundMessage, identity string) (string, bool) {
	if s.policy == nil || !s.sw.Enabled() {
		return "", false
	}
	if m.Key.FromMe || m.Key.RemoteJID == "" || m.Key.RemoteJID == statusBroadcastJID {
		return "", false
	}
	if identity != "" && sameUser(m.Sender, identity) {
		return "", false
	}
	return domain.TextOf(m.Content)
}

func (s *Supervisor) autoReply(rec *session.Record, gen uint64, chat, text string) {
	log := s.log.With().Str("session_id", rec.ID).Str("chat", chat).Logger()

	ctx, cancel := context.WithTimeout(s.ctx, s.replyTimeout)
	defer cancel()

	reply, err := s.policy.Reply(ctx, autoreply.Request{Message: text, Context: s.systemPrompt})
	if err != nil {
		log.Warn().Err(err).Msg("auto-reply failed")
		return
	}

	// The session may have dropped while the model was thinking.
	conn, _, ok := rec.OpenConn()
	if !ok || !rec.Owns(gen) {
		log.Info().Msg("auto-reply discarded, session no longer open")
		return
	}
	if _, err := conn.SendText(ctx, chat, reply); err != nil {
		log.Warn().Err(err).Msg("auto-reply send failed")
		return
	}
	log.Debug().Int("length", len(reply)).Msg("auto-reply sent")
}

// sameUser compares the user part of two JIDs, ignoring device and server.
func sameUser(a, b string) bool {
	ua, ub := jidUser(a), jidUser(b)
	return ua != "" && ua == ub
}

func jidUser(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		jid = jid[:i]
	}
	if i := strings.IndexByte(jid, ':'); i >= 0 {
		jid = jid[:i]
	}
	return jid
}
