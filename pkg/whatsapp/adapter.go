package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"wabridge/pkg/logger"
)

// Adapter owns the single long-lived engine client for the process. The
// HTTP gateway calls it concurrently; the engine serializes the actual
// socket operations, so no locking is added around sends.
type Adapter struct {
	cfg       AdapterConfig
	tracker   *stateTracker
	mu        sync.RWMutex
	client    *whatsmeow.Client
	container *sqlstore.Container
}

type AdapterConfig struct {
	StorePath  string // directory for the engine's session artifacts
	DeviceName string // name shown in the phone's linked-devices list
}

func NewAdapter(cfg AdapterConfig) *Adapter {
	return &Adapter{
		cfg:     cfg,
		tracker: newStateTracker(),
	}
}

// Run initializes the engine and blocks until ctx is canceled. An
// initialization failure is logged and leaves the adapter permanently
// disconnected; the process keeps serving and /status reports it.
func (a *Adapter) Run(ctx context.Context) error {
	if err := a.start(ctx); err != nil {
		logger.ErrorCF("whatsapp", "Engine failed to start", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
		a.tracker.set(StateDisconnected, err.Error())
	}

	<-ctx.Done()
	a.Close()
	return nil
}

func (a *Adapter) start(ctx context.Context) error {
	a.tracker.set(StateConnecting, "")

	if err := os.MkdirAll(a.cfg.StorePath, 0755); err != nil {
		return fmt.Errorf("create session store directory: %w", err)
	}

	dbPath := filepath.Join(a.cfg.StorePath, "session.db")
	container, err := sqlstore.New(ctx, "sqlite",
		"file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)",
		waLog.Noop)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("load device: %w", err)
	}

	if a.cfg.DeviceName != "" {
		store.DeviceProps.Os = proto.String(a.cfg.DeviceName)
	}

	client := whatsmeow.NewClient(device, waLog.Stdout("engine", "WARN", false))
	client.AddEventHandler(a.handleEvent)

	a.mu.Lock()
	a.client = client
	a.container = container
	a.mu.Unlock()

	if client.Store.ID == nil {
		// Fresh session: pairing required before the first connect.
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("request pairing channel: %w", err)
		}
		if err := client.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		go a.consumeQRChannel(qrChan)
		return nil
	}

	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (a *Adapter) consumeQRChannel(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			a.tracker.setQR(item.Code)
			logger.InfoC("whatsapp", "Scan the QR code below with your phone to pair")
			qrterminal.GenerateHalfBlock(item.Code, qrterminal.L, os.Stdout)
		case "success":
			a.tracker.set(StateAuthenticated, "")
			logger.InfoC("whatsapp", "Pairing successful")
		case "timeout":
			a.tracker.set(StateDisconnected, "pairing timed out")
			logger.WarnC("whatsapp", "Pairing timed out before the QR code was scanned")
		default:
			logger.WarnCF("whatsapp", "Unexpected pairing event", map[string]interface{}{
				"event": item.Event,
			})
		}
	}
}

func (a *Adapter) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.PairSuccess:
		a.tracker.set(StateAuthenticated, "")
		logger.InfoCF("whatsapp", "Device paired", map[string]interface{}{
			"jid": v.ID.String(),
		})
	case *events.Connected:
		a.tracker.set(StateReady, "")
		logger.InfoC("whatsapp", "Engine connected and ready")
	case *events.Disconnected:
		a.tracker.set(StateDisconnected, "")
		logger.WarnC("whatsapp", "Engine disconnected")
	case *events.LoggedOut:
		a.tracker.set(StateDisconnected, "logged out")
		logger.WarnCF("whatsapp", "Session logged out", map[string]interface{}{
			"reason": fmt.Sprintf("%v", v.Reason),
		})
	case *events.StreamReplaced:
		a.tracker.set(StateDisconnected, "stream replaced")
		logger.WarnC("whatsapp", "Session taken over by another connection")
	}
}

// SendText sends a plain text message and returns the engine message ID.
func (a *Adapter) SendText(ctx context.Context, address, body string) (string, error) {
	client, err := a.clientHandle()
	if err != nil {
		return "", err
	}

	resp, err := client.SendMessage(ctx, toJID(address), &waE2E.Message{
		Conversation: proto.String(body),
	})
	if err != nil {
		return "", fmt.Errorf("send text: %w", err)
	}

	logger.DebugCF("whatsapp", "Text message sent", map[string]interface{}{
		logger.FieldAddress:   address,
		logger.FieldMessageID: resp.ID,
	})
	return resp.ID, nil
}

// SendMedia uploads payload and sends it as an image for image/* mime
// types, as a document otherwise. Returns the engine message ID.
func (a *Adapter) SendMedia(ctx context.Context, address string, payload []byte, mimeType, filename, caption string) (string, error) {
	client, err := a.clientHandle()
	if err != nil {
		return "", err
	}

	mediaType := whatsmeow.MediaDocument
	if strings.HasPrefix(mimeType, "image/") {
		mediaType = whatsmeow.MediaImage
	}

	uploaded, err := client.Upload(ctx, payload, mediaType)
	if err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}

	var msg *waE2E.Message
	if mediaType == whatsmeow.MediaImage {
		image := &waE2E.ImageMessage{
			Mimetype:      proto.String(mimeType),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		}
		if caption != "" {
			image.Caption = proto.String(caption)
		}
		msg = &waE2E.Message{ImageMessage: image}
	} else {
		document := &waE2E.DocumentMessage{
			FileName:      proto.String(filename),
			Mimetype:      proto.String(mimeType),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		}
		if caption != "" {
			document.Caption = proto.String(caption)
		}
		msg = &waE2E.Message{DocumentMessage: document}
	}

	resp, err := client.SendMessage(ctx, toJID(address), msg)
	if err != nil {
		return "", fmt.Errorf("send media: %w", err)
	}

	logger.DebugCF("whatsapp", "Media message sent", map[string]interface{}{
		logger.FieldAddress:   address,
		logger.FieldMessageID: resp.ID,
		"mime_type":           mimeType,
	})
	return resp.ID, nil
}

// Session returns a snapshot of the authenticated session, or false when
// there is none. No session is a normal state, not an error.
func (a *Adapter) Session() (SessionInfo, bool) {
	a.mu.RLock()
	client := a.client
	a.mu.RUnlock()

	if client == nil || !client.IsConnected() || client.Store.ID == nil {
		return SessionInfo{}, false
	}

	return SessionInfo{
		ID:          client.Store.ID.User,
		Platform:    client.Store.Platform,
		DisplayName: client.Store.PushName,
	}, true
}

// Status returns the current observable connection state.
func (a *Adapter) Status() StatusUpdate {
	return a.tracker.snapshot()
}

// Subscribe registers for state change notifications. The returned cancel
// func must be called when the subscriber goes away.
func (a *Adapter) Subscribe() (<-chan StatusUpdate, func()) {
	return a.tracker.subscribe()
}

// Close releases the engine connection and the session store.
func (a *Adapter) Close() {
	a.mu.Lock()
	client := a.client
	container := a.container
	a.client = nil
	a.container = nil
	a.mu.Unlock()

	if client != nil {
		client.Disconnect()
	}
	if container != nil {
		if err := container.Close(); err != nil {
			logger.WarnCF("whatsapp", "Error closing session store", map[string]interface{}{
				logger.FieldError: err.Error(),
			})
		}
	}
	a.tracker.set(StateDisconnected, "")
}

func (a *Adapter) clientHandle() (*whatsmeow.Client, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.client == nil {
		return nil, fmt.Errorf("engine not initialized")
	}
	return a.client, nil
}
