package license

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wa-dashboard/internal/apperrors"
	"wa-dashboard/internal/repo"
	"wa-dashboard/internal/validator"
	"wa-dashboard/internal/wa"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type memLicenses struct {
	mu        sync.Mutex
	rows      map[int64]repo.License
	nextID    int64
	statusErr error
	writes    []string
}

func newMemLicenses(rows ...repo.License) *memLicenses {
	m := &memLicenses{rows: map[int64]repo.License{}}
	for _, l := range rows {
		m.nextID++
		l.ID = m.nextID
		m.rows[l.ID] = l
	}
	return m
}

func (m *memLicenses) List(_ context.Context, ownerID string) ([]repo.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repo.License
	for id := m.nextID; id > 0; id-- {
		if l, ok := m.rows[id]; ok && l.OwnerID == ownerID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memLicenses) Get(_ context.Context, ownerID string, id int64) (*repo.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rows[id]
	if !ok || l.OwnerID != ownerID {
		return nil, fmt.Errorf("license %d: %w", id, apperrors.ErrNotFound)
	}
	return &l, nil
}

func (m *memLicenses) Insert(_ context.Context, ownerID string, l repo.License) (*repo.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	l.ID, l.OwnerID, l.CreatedAt = m.nextID, ownerID, time.Now()
	m.rows[l.ID] = l
	return &l, nil
}

func (m *memLicenses) UpdateLicenseStatus(_ context.Context, ownerID string, id int64, status, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statusErr != nil {
		return m.statusErr
	}
	l, ok := m.rows[id]
	if !ok || l.OwnerID != ownerID {
		return apperrors.ErrNotFound
	}
	l.Status, l.StatusText = status, text
	m.rows[id] = l
	m.writes = append(m.writes, status)
	return nil
}

type fakeGateway struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (g *fakeGateway) record(call string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
	return g.err
}

func (g *fakeGateway) QRCode(_ context.Context, id string) (*wa.QRCode, error) {
	if err := g.record("qr " + id); err != nil {
		return nil, err
	}
	return &wa.QRCode{Code: "2@code"}, nil
}

func (g *fakeGateway) RequestPairingCode(_ context.Context, id, phone string) (string, error) {
	if err := g.record("pair " + id + " " + phone); err != nil {
		return "", err
	}
	return "ABCD-EFGH", nil
}

func (g *fakeGateway) Logout(_ context.Context, id string) error { return g.record("logout " + id) }
func (g *fakeGateway) Reboot(_ context.Context, id string) error { return g.record("reboot " + id) }

const owner = "owner-1"

func setup(rows ...repo.License) (*Service, *memLicenses, *fakeGateway) {
	store := newMemLicenses(rows...)
	gw := &fakeGateway{}
	svc := NewService(store, store, gw, Options{OptimisticConnect: true, GatewayTimeout: time.Second}, discard, nil)
	return svc, store, gw
}

func TestRequestQRWithoutInstanceFailsBeforeNetwork(t *testing.T) {
	svc, store, gw := setup(repo.License{OwnerID: owner, Label: "Boutique"})

	_, err := svc.RequestQR(context.Background(), owner, 1)
	require.ErrorIs(t, err, apperrors.ErrMissingField)
	assert.Contains(t, err.Error(), "instance id")
	assert.Empty(t, gw.calls)
	assert.Empty(t, store.writes)
}

func TestRequestQROptimisticConnect(t *testing.T) {
	svc, store, gw := setup(repo.License{OwnerID: owner, InstanceID: "inst-1"})

	res, err := svc.RequestQR(context.Background(), owner, 1)
	require.NoError(t, err)
	assert.Equal(t, "2@code", res.QR.Code)
	assert.Equal(t, repo.LicenseConnected, res.License.Status)
	assert.Equal(t, TextQRIssued, store.rows[1].StatusText)
	assert.Equal(t, []string{"qr inst-1"}, gw.calls)
}

func TestRequestQRConservativeConnect(t *testing.T) {
	store := newMemLicenses(repo.License{OwnerID: owner, InstanceID: "inst-1"})
	svc := NewService(store, store, &fakeGateway{}, Options{}, discard, nil)

	res, err := svc.RequestQR(context.Background(), owner, 1)
	require.NoError(t, err)
	assert.Equal(t, repo.LicenseConnecting, res.License.Status)
}

func TestGatewayFailureLeavesStateUntouched(t *testing.T) {
	svc, store, gw := setup(repo.License{OwnerID: owner, InstanceID: "inst-1", Status: repo.LicenseDisconnected})
	gw.err = &wa.StatusError{Endpoint: "qr", StatusCode: 503}

	_, err := svc.RequestQR(context.Background(), owner, 1)
	require.ErrorIs(t, err, apperrors.ErrGatewayCall)
	assert.NotErrorIs(t, err, apperrors.ErrPersistence)
	assert.Equal(t, repo.LicenseDisconnected, store.rows[1].Status)
}

func TestPersistenceFailureIsDistinctAndKeepsGatewayResult(t *testing.T) {
	svc, store, _ := setup(repo.License{OwnerID: owner, InstanceID: "inst-1"})
	store.statusErr = errors.Join(apperrors.ErrStore, errors.New("connection reset"))

	res, err := svc.RequestPairingCode(context.Background(), owner, 1, "+221 77 123 45 67")
	require.ErrorIs(t, err, apperrors.ErrPersistence)
	assert.Equal(t, "persistence", apperrors.Kind(err))
	require.NotNil(t, res)
	assert.Equal(t, "ABCD-EFGH", res.Code)
}

func TestPairingCodeValidatesPhone(t *testing.T) {
	svc, _, gw := setup(repo.License{OwnerID: owner, InstanceID: "inst-1"})

	_, err := svc.RequestPairingCode(context.Background(), owner, 1, "call me")
	require.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Contains(t, validator.Fields(err), "phone_number")
	assert.Empty(t, gw.calls)

	_, err = svc.RequestPairingCode(context.Background(), owner, 1, "+221 77-123-45-67")
	require.NoError(t, err)
	assert.Equal(t, []string{"pair inst-1 +221771234567"}, gw.calls)
}

func TestLogoutAndReboot(t *testing.T) {
	svc, store, _ := setup(repo.License{OwnerID: owner, InstanceID: "inst-1", Status: repo.LicenseConnected})

	v, err := svc.Reboot(context.Background(), owner, 1)
	require.NoError(t, err)
	assert.Equal(t, repo.LicenseRestarting, v.Status)
	assert.Equal(t, repo.LicenseConnected, v.DisplayStatus)
	assert.Equal(t, TextRebooted, v.StatusText)

	v, err = svc.Logout(context.Background(), owner, 1)
	require.NoError(t, err)
	assert.Equal(t, repo.LicenseDisconnected, v.DisplayStatus)
	assert.Equal(t, []string{repo.LicenseRestarting, repo.LicenseDisconnected}, store.writes)
}

func TestForeignLicenseIsNotFound(t *testing.T) {
	svc, _, gw := setup(repo.License{OwnerID: "someone-else", InstanceID: "inst-1"})

	_, err := svc.Logout(context.Background(), owner, 1)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Empty(t, gw.calls)
}

func TestCreateAndList(t *testing.T) {
	svc, _, _ := setup()

	_, err := svc.Create(context.Background(), owner, Form{InstanceID: "  "})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	created, err := svc.Create(context.Background(), owner, Form{InstanceID: " inst-9 ", Label: "Shop"})
	require.NoError(t, err)
	assert.Equal(t, "inst-9", created.InstanceID)
	assert.Equal(t, repo.LicenseDisconnected, created.DisplayStatus)

	views, err := svc.List(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, views, 1)
}
