package whatsapp

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/ricochet1k/wamux/internal/domain"
)

// StoreFile is the device store whatsmeow keeps inside a session's
// credential directory.
const StoreFile = "store.db"

// WhatsmeowEngine opens connections with go.mau.fi/whatsmeow, keeping each
// session's device keys in a sqlite database inside its directory.
type WhatsmeowEngine struct {
	log zerolog.Logger
}

var setDeviceName sync.Once

// NewWhatsmeowEngine creates the engine. deviceName is what the phone shows
// under linked devices.
func NewWhatsmeowEngine(log zerolog.Logger, deviceName string) *WhatsmeowEngine {
	if deviceName != "" {
		setDeviceName.Do(func() {
			store.DeviceProps.Os = proto.String(deviceName)
		})
	}
	return &WhatsmeowEngine{log: log.With().Str("component", "whatsmeow").Logger()}
}

func (e *WhatsmeowEngine) Open(ctx context.Context, sessionID, dir string, sink EventSink) (Conn, error) {
	log := e.log.With().Str("session_id", sessionID).Logger()

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", filepath.Join(dir, StoreFile))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open credential store")
	}

	container := sqlstore.NewWithDB(db, "sqlite3", newWALogger(log.With().Str("module", "store").Logger()))
	if err := container.Upgrade(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "upgrade credential store")
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "load device")
	}

	client := whatsmeow.NewClient(device, newWALogger(log.With().Str("module", "client").Logger()))
	// Reconnection is the supervisor's job.
	client.EnableAutoReconnect = false

	lifetime, cancel := context.WithCancel(context.Background())
	conn := &whatsmeowConn{
		client: client,
		db:     db,
		cancel: cancel,
		sink:   sink,
		log:    log,
	}
	client.AddEventHandler(conn.handleEvent)

	if client.Store.ID == nil {
		qrItems, err := client.GetQRChannel(lifetime)
		if err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "request pairing channel")
		}
		go conn.watchPairing(qrItems)
	}

	if err := client.Connect(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "connect")
	}
	return conn, nil
}

type whatsmeowConn struct {
	client *whatsmeow.Client
	db     *sql.DB
	cancel context.CancelFunc
	sink   EventSink
	log    zerolog.Logger
	once   sync.Once
}

func (c *whatsmeowConn) SendText(ctx context.Context, to, text string) (SendResult, error) {
	jid, err := types.ParseJID(to)
	if err != nil {
		return SendResult{}, domain.InvalidArgument("recipient %q: %v", to, err)
	}
	resp, err := c.client.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	if err != nil {
		return SendResult{}, errors.Wrap(err, "send message")
	}
	return SendResult{
		ID:        resp.ID,
		To:        jid.String(),
		Timestamp: resp.Timestamp,
		ServerID:  int(resp.ServerID),
	}, nil
}

func (c *whatsmeowConn) Logout(ctx context.Context) error {
	return errors.Wrap(c.client.Logout(ctx), "logout")
}

func (c *whatsmeowConn) Close() {
	c.once.Do(func() {
		c.cancel()
		c.client.Disconnect()
		if err := c.db.Close(); err != nil {
			c.log.Debug().Err(err).Msg("close credential store")
		}
	})
}

func (c *whatsmeowConn) watchPairing(items <-chan whatsmeow.QRChannelItem) {
	for item := range items {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			c.sink.OnChallenge(item.Code)
		case whatsmeow.QRChannelTimeout.Event:
			c.sink.OnDisconnected(domain.DisconnectChallengeTimeout)
		case whatsmeow.QRChannelEventError:
			c.log.Warn().Err(item.Error).Msg("pairing failed")
		}
	}
}

func (c *whatsmeowConn) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.PairSuccess:
		c.sink.OnPaired()
	case *events.Connected:
		identity := ""
		if id := c.client.Store.ID; id != nil {
			identity = id.String()
		}
		c.sink.OnConnected(identity)
	case *events.LoggedOut:
		c.sink.OnDisconnected(domain.DisconnectLoggedOut)
	case *events.StreamReplaced:
		c.sink.OnDisconnected(domain.DisconnectReplaced)
	case *events.ConnectFailure:
		if v.Reason.IsLoggedOut() {
			c.sink.OnDisconnected(domain.DisconnectLoggedOut)
			return
		}
		c.sink.OnDisconnected(domain.DisconnectNetwork)
	case *events.Disconnected:
		c.sink.OnDisconnected(domain.DisconnectNetwork)
	case *events.Message:
		c.sink.OnMessages([]domain.InboundMessage{inboundMessage(v)})
	}
}

func inboundMessage(v *events.Message) domain.InboundMessage {
	info := v.Info
	key := domain.MessageKey{
		RemoteJID: info.Chat.String(),
		FromMe:    info.IsFromMe,
		ID:        info.ID,
	}
	if info.IsGroup {
		key.Participant = info.Sender.String()
	}
	return domain.InboundMessage{
		Key:       key,
		Timestamp: info.Timestamp,
		PushName:  info.PushName,
		Sender:    info.Sender.String(),
		Content:   contentOf(v.Message),
	}
}

func contentOf(m *waE2E.Message) domain.Content {
	switch {
	case m == nil:
		return domain.UnsupportedContent{Kind: "empty"}
	case m.Conversation != nil:
		return domain.TextContent{Text: m.GetConversation()}
	case m.ExtendedTextMessage != nil:
		return domain.ExtendedTextContent{Text: m.GetExtendedTextMessage().GetText()}
	case m.ImageMessage != nil:
		return domain.MediaContent{Kind: "image", Caption: m.GetImageMessage().GetCaption()}
	case m.VideoMessage != nil:
		return domain.MediaContent{Kind: "video", Caption: m.GetVideoMessage().GetCaption()}
	default:
		return domain.UnsupportedContent{Kind: "other"}
	}
}
