package repo

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wa-dashboard/internal/apperrors"
	"wa-dashboard/migrations"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "test.db"), logger, nil)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	require.NoError(t, r.RunMigrations(ctx, migrations.Files))
	return r
}

func newTestOperator(t *testing.T, r *Repository) *Operator {
	t.Helper()
	op, err := r.CreateOperator(context.Background(), Operator{
		Email:    gofakeit.Email(),
		Provider: "password",
	}, gofakeit.Name())
	require.NoError(t, err)
	return op
}

func TestRebindPostgres(t *testing.T) {
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", postgres.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))
	assert.Equal(t, "a = ?", sqlite.rebind("a = ?"))
}

func TestMigrationsAreIdempotent(t *testing.T) {
	r := newTestRepo(t)
	require.NoError(t, r.RunMigrations(context.Background(), migrations.Files))
}

func TestCouponUpsertAndList(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	op := newTestOperator(t, r)
	coupons := r.Coupons()

	expiry := time.Date(2030, 1, 31, 0, 0, 0, 0, time.UTC)
	first, err := coupons.Insert(ctx, op.ID, Coupon{Title: "Summer", VisualDescription: "Yellow banner with sun", Code: "SUN10", ExpiryDay: expiry})
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	assert.Equal(t, op.ID, first.OwnerID)
	assert.Equal(t, "SUN10", first.Code)
	assert.True(t, first.ExpiryDay.Equal(expiry))

	second, err := coupons.Insert(ctx, op.ID, Coupon{Title: "Winter", VisualDescription: "Blue banner", Code: "SNOW", ExpiryDay: expiry})
	require.NoError(t, err)

	rows, err := coupons.List(ctx, op.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, second.ID, rows[0].ID, "newest first")

	updated, err := coupons.Update(ctx, op.ID, first.ID, Coupon{Title: "Summer sale", VisualDescription: "Yellow banner", Code: "SUN20", ExpiryDay: expiry})
	require.NoError(t, err)
	assert.Equal(t, first.ID, updated.ID)
	assert.Equal(t, "SUN20", updated.Code)

	rows, err = coupons.List(ctx, op.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 2, "update must not add rows")
}

func TestOwnerScoping(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	alice := newTestOperator(t, r)
	bob := newTestOperator(t, r)
	rules := r.BotRules()

	rule, err := rules.Insert(ctx, alice.ID, BotRule{Rule: "Always greet the customer politely"})
	require.NoError(t, err)

	err = rules.Delete(ctx, bob.ID, rule.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = rules.Update(ctx, bob.ID, rule.ID, BotRule{Rule: "hijacked rule text"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = rules.Get(ctx, bob.ID, rule.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	bobRows, err := rules.List(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, bobRows)

	aliceRows, err := rules.List(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, aliceRows, 1)
	assert.Equal(t, "Always greet the customer politely", aliceRows[0].Rule)

	require.NoError(t, rules.Delete(ctx, alice.ID, rule.ID))
	aliceRows, err = rules.List(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, aliceRows)
}

func TestCountAndLatest(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	op := newTestOperator(t, r)
	links := r.UsefulLinks()

	n, err := links.Count(ctx, op.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	latest, err := links.LatestCreatedAt(ctx, op.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	_, err = links.Insert(ctx, op.ID, UsefulLink{Label: "Docs", URL: "https://example.com/docs"})
	require.NoError(t, err)

	n, err = links.Count(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	latest, err = links.LatestCreatedAt(ctx, op.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
}

func TestProblemCategoryPersisted(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	op := newTestOperator(t, r)

	p, err := r.Problems().Insert(ctx, op.ID, Problem{Problem: "Cannot log in", Solution: "Reset the password", Tags: "login,compte", Category: "Compte"})
	require.NoError(t, err)
	assert.Equal(t, "Compte", p.Category)
}

func TestCreateOperatorDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	op := newTestOperator(t, r)

	_, err := r.CreateOperator(ctx, Operator{Email: op.Email}, "dup")
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	found, err := r.OperatorByEmail(ctx, op.Email)
	require.NoError(t, err)
	assert.Equal(t, op.ID, found.ID)

	profile, err := r.GetProfile(ctx, op.ID)
	require.NoError(t, err)
	assert.False(t, profile.IsSolvent)
}

func TestUniqueViolationIsConflict(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	op := newTestOperator(t, r)

	// Same email inserted without the pre-check, as a racing sign-up would.
	_, err := r.db.ExecContext(ctx, `INSERT INTO operators (id, email) VALUES (?, ?)`, randomUUID(), op.Email)
	require.Error(t, err)
	err = storeErr("create operator", err)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, "conflict", apperrors.Kind(err))

	assert.ErrorIs(t, storeErr("create operator", &pgconn.PgError{Code: "23505"}), apperrors.ErrConflict)

	fk := storeErr("insert profile", &pgconn.PgError{Code: "23503"})
	assert.ErrorIs(t, fk, apperrors.ErrStore)
	assert.NotErrorIs(t, fk, apperrors.ErrConflict)
}

func TestProfilePhotoStoredVerbatim(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	op := newTestOperator(t, r)

	url := "https://cdn.example.com/storage/v1/object/public/uploads/" + op.ID + "/photo.png?v=2"
	p, err := r.SetProfilePhoto(ctx, op.ID, url)
	require.NoError(t, err)
	assert.Equal(t, url, p.PhotoURL)
}

func TestSettlePaymentOrderOnce(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	op := newTestOperator(t, r)

	_, err := r.InsertPaymentOrder(ctx, PaymentOrder{OrderID: "order_1_abc", OwnerID: op.ID, Amount: 5000})
	require.NoError(t, err)

	settled, err := r.SettlePaymentOrder(ctx, op.ID, "order_1_abc")
	require.NoError(t, err)
	assert.True(t, settled)

	settled, err = r.SettlePaymentOrder(ctx, op.ID, "order_1_abc")
	require.NoError(t, err)
	assert.False(t, settled)

	profile, err := r.GetProfile(ctx, op.ID)
	require.NoError(t, err)
	assert.True(t, profile.IsSolvent)

	order, err := r.GetPaymentOrder(ctx, op.ID, "order_1_abc")
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, order.Status)

	failed, err := r.FailPaymentOrder(ctx, op.ID, "order_1_abc")
	require.NoError(t, err)
	assert.False(t, failed, "a paid order never becomes failed")
}

func TestUpdateLicenseStatus(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	op := newTestOperator(t, r)
	other := newTestOperator(t, r)

	lic, err := r.Licenses().Insert(ctx, op.ID, License{InstanceID: "inst-1", Status: LicenseDisconnected})
	require.NoError(t, err)

	require.NoError(t, r.UpdateLicenseStatus(ctx, op.ID, lic.ID, LicenseConnected, "Connecté"))
	got, err := r.Licenses().Get(ctx, op.ID, lic.ID)
	require.NoError(t, err)
	assert.Equal(t, LicenseConnected, got.Status)
	assert.Equal(t, "Connecté", got.StatusText)

	err = r.UpdateLicenseStatus(ctx, other.ID, lic.ID, LicenseDisconnected, "")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestBackgrounds(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	_, err := r.AddBackground(ctx, "https://img.example/1.jpg", ThemeLight)
	require.NoError(t, err)
	_, err = r.AddBackground(ctx, "https://img.example/2.jpg", ThemeDark)
	require.NoError(t, err)

	images, err := r.ListBackgrounds(ctx)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, ThemeLight, images[0].Theme)
}

func TestMissingOwnerIsUnauthorized(t *testing.T) {
	r := newTestRepo(t)
	_, err := r.Procedures().List(context.Background(), " ")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}
