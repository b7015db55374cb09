package wa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	_ "modernc.org/sqlite"

	"wa-dashboard/internal/apperrors"
)

// LocalConfig configures the in-process whatsmeow provider.
type LocalConfig struct {
	// StoreDir holds one session database per instance.
	StoreDir string
	LogLevel string
	// QRTimeout bounds the wait for the first QR code.
	QRTimeout time.Duration
}

// LocalProvider runs gateway instances in-process with whatsmeow, one
// SQLite-backed device store per instance id.
type LocalProvider struct {
	cfg    LocalConfig
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*localSession
}

type localSession struct {
	client *whatsmeow.Client

	mu      sync.Mutex
	qr      string
	qrReady chan struct{}
}

var instancePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// NewLocalProvider creates the store directory.
func NewLocalProvider(cfg LocalConfig, logger *slog.Logger) (*LocalProvider, error) {
	if cfg.StoreDir == "" {
		return nil, errors.New("store dir is required")
	}
	if err := ensureDir(cfg.StoreDir); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}
	if cfg.QRTimeout <= 0 {
		cfg.QRTimeout = 20 * time.Second
	}
	return &LocalProvider{
		cfg:      cfg,
		logger:   logger.With("component", "wa-local"),
		sessions: map[string]*localSession{},
	}, nil
}

func (p *LocalProvider) session(ctx context.Context, instanceID string) (*localSession, error) {
	if !instancePattern.MatchString(instanceID) {
		return nil, fmt.Errorf("invalid instance id %q: %w", instanceID, apperrors.ErrValidation)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[instanceID]; ok {
		return s, nil
	}

	storePath := filepath.Join(p.cfg.StoreDir, instanceID+".db")
	storeLogger := waLog.Stdout("whatsmeow/sqlstore", p.cfg.LogLevel, true)
	container, err := sqlstore.New(ctx, "sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout=10000&_pragma=foreign_keys(ON)", storePath), storeLogger)
	if err != nil {
		return nil, fmt.Errorf("create sqlstore: %w", err)
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}

	s := &localSession{
		client: whatsmeow.NewClient(deviceStore, waLog.Stdout("whatsmeow/"+instanceID, p.cfg.LogLevel, true)),
	}
	logger := p.logger.With("instance", instanceID)
	s.client.AddEventHandler(func(evt any) {
		switch evt.(type) {
		case *events.Connected:
			logger.Info("device connected")
		case *events.PairSuccess:
			logger.Info("device paired")
		case *events.LoggedOut:
			logger.Warn("device logged out")
		case *events.Disconnected:
			logger.Warn("device disconnected")
		}
	})
	p.sessions[instanceID] = s
	return s, nil
}

// connect opens the websocket. Unpaired devices start a new pairing round,
// so codes issued on an earlier connection are never handed out again.
func (p *LocalProvider) connect(s *localSession, instanceID string) error {
	if s.client.IsConnected() {
		return nil
	}
	if s.client.Store.ID == nil {
		ready := s.armQR()
		qrChan, err := s.client.GetQRChannel(context.Background())
		if err != nil {
			return fmt.Errorf("get qr channel: %w", err)
		}
		go s.pumpQR(ready, qrChan, func(event string) {
			p.logger.Info("pairing event received", "instance", instanceID, "event", event)
		})
	}
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("connect wa client: %w", err)
	}
	return nil
}

// armQR drops the code of the previous round and returns the channel that
// closes once the next one arrives.
func (s *localSession) armQR() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.qr = ""
	s.qrReady = make(chan struct{})
	return s.qrReady
}

// pumpQR records codes of the round identified by ready until qrChan closes.
// Items of a superseded round are dropped.
func (s *localSession) pumpQR(ready chan struct{}, qrChan <-chan whatsmeow.QRChannelItem, onEvent func(string)) {
	for evt := range qrChan {
		if evt.Event != whatsmeow.QRChannelEventCode {
			onEvent(evt.Event)
			continue
		}
		s.mu.Lock()
		if s.qrReady == ready {
			first := s.qr == ""
			s.qr = evt.Code
			if first {
				close(ready)
			}
		}
		s.mu.Unlock()
	}
}

// waitQR returns the latest code of the current round.
func (s *localSession) waitQR(ctx context.Context, timeout time.Duration) (string, error) {
	s.mu.Lock()
	ready := s.qrReady
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ready:
	case <-timer.C:
		return "", errors.New("timed out waiting for qr code")
	case <-ctx.Done():
		return "", ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.qr, nil
}

func (p *LocalProvider) fail(op string, err error) error {
	return fmt.Errorf("local gateway %s: %w: %v", op, apperrors.ErrGatewayCall, err)
}

// QRCode implements Gateway.
func (p *LocalProvider) QRCode(ctx context.Context, instanceID string) (*QRCode, error) {
	s, err := p.session(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if s.client.Store.ID != nil {
		return nil, p.fail("qr", errors.New("instance already paired"))
	}
	if err := p.connect(s, instanceID); err != nil {
		return nil, p.fail("qr", err)
	}
	code, err := s.waitQR(ctx, p.cfg.QRTimeout)
	if err != nil {
		return nil, p.fail("qr", err)
	}
	p.logger.Info("qr code issued", "instance", instanceID)
	return &QRCode{Code: code, Terminal: renderTerminal(code)}, nil
}

// RequestPairingCode implements Gateway.
func (p *LocalProvider) RequestPairingCode(ctx context.Context, instanceID, phoneNumber string) (string, error) {
	s, err := p.session(ctx, instanceID)
	if err != nil {
		return "", err
	}
	if s.client.Store.ID != nil {
		return "", p.fail("request-pairing-code", errors.New("instance already paired"))
	}
	if err := p.connect(s, instanceID); err != nil {
		return "", p.fail("request-pairing-code", err)
	}
	// Phone pairing is only accepted once the server issued the first QR code.
	if _, err := s.waitQR(ctx, p.cfg.QRTimeout); err != nil {
		return "", p.fail("request-pairing-code", err)
	}
	phone := strings.TrimPrefix(phoneNumber, "+")
	code, err := s.client.PairPhone(ctx, phone, true, whatsmeow.PairClientChrome, "Chrome (Linux)")
	if err != nil {
		return "", p.fail("request-pairing-code", err)
	}
	return code, nil
}

// Logout implements Gateway.
func (p *LocalProvider) Logout(ctx context.Context, instanceID string) error {
	s, err := p.session(ctx, instanceID)
	if err != nil {
		return err
	}
	if s.client.Store.ID == nil {
		s.client.Disconnect()
		p.forget(instanceID)
		return nil
	}
	if err := s.client.Logout(ctx); err != nil {
		return p.fail("logout", err)
	}
	p.forget(instanceID)
	return nil
}

// Reboot implements Gateway.
func (p *LocalProvider) Reboot(ctx context.Context, instanceID string) error {
	s, err := p.session(ctx, instanceID)
	if err != nil {
		return err
	}
	s.client.Disconnect()
	if err := p.connect(s, instanceID); err != nil {
		return p.fail("reboot", err)
	}
	return nil
}

func (p *LocalProvider) forget(instanceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, instanceID)
}

// Close disconnects every instance.
func (p *LocalProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, s := range p.sessions {
		s.client.Disconnect()
		delete(p.sessions, id)
	}
}

func renderTerminal(code string) string {
	var b strings.Builder
	qrterminal.GenerateWithConfig(code, qrterminal.Config{
		Level:     qrterminal.L,
		Writer:    &b,
		BlackChar: "██",
		WhiteChar: "  ",
		QuietZone: 1,
	})
	return b.String()
}

func ensureDir(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}
