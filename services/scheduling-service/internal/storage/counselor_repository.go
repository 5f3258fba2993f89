package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ibrahgraphix/FlameCounselling-sub000/libs/db"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/gcal"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/model"
)

// CounselorRepository reads counselor scheduling settings and owns the Google
// OAuth columns. It implements gcal.CredentialStore.
type CounselorRepository struct {
	pool *db.Pool
}

func NewCounselorRepository(pool *db.Pool) *CounselorRepository {
	return &CounselorRepository{pool: pool}
}

const counselorColumns = `
	id::text,
	name,
	email,
	COALESCE(timezone, ''),
	COALESCE(work_start, '09:00'),
	COALESCE(work_end, '17:00'),
	COALESCE(google_access_token, ''),
	COALESCE(google_refresh_token, ''),
	google_token_expiry,
	COALESCE(google_calendar_id, ''),
	COALESCE(google_connected, false),
	COALESCE(google_oauth_state, '')`

func scanCounselor(row pgx.Row) (model.Counselor, error) {
	var c model.Counselor
	var expiry *time.Time
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Email,
		&c.Timezone,
		&c.WorkStart,
		&c.WorkEnd,
		&c.AccessToken,
		&c.RefreshToken,
		&expiry,
		&c.CalendarID,
		&c.Connected,
		&c.OAuthState,
	)
	if err != nil {
		return model.Counselor{}, err
	}
	c.TokenExpiry = expiry
	return c, nil
}

func (r *CounselorRepository) GetCounselor(ctx context.Context, counselorID string) (model.Counselor, error) {
	return scanCounselor(r.pool.QueryRow(ctx, `
		SELECT `+counselorColumns+`
		FROM counselors
		WHERE id = $1
	`, counselorID))
}

func (r *CounselorRepository) FindCounselorByOAuthState(ctx context.Context, state string) (model.Counselor, bool, error) {
	c, err := scanCounselor(r.pool.QueryRow(ctx, `
		SELECT `+counselorColumns+`
		FROM counselors
		WHERE google_oauth_state = $1
	`, state))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Counselor{}, false, nil
	}
	if err != nil {
		return model.Counselor{}, false, err
	}
	return c, true, nil
}

// SaveOAuthState stores the pending nonce, replacing any earlier one that was
// never consumed.
func (r *CounselorRepository) SaveOAuthState(ctx context.Context, counselorID, state string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE counselors
		SET google_oauth_state = $2,
			updated_at = now()
		WHERE id = $1
	`, counselorID, state)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SaveTokens persists the token set, marks the counselor connected, and
// consumes the oauth state. Connected is only ever set here, as a side effect
// of a successful token store.
func (r *CounselorRepository) SaveTokens(ctx context.Context, counselorID string, tok gcal.StoredToken) error {
	var expiry *time.Time
	if !tok.Expiry.IsZero() {
		expiry = &tok.Expiry
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE counselors
		SET google_access_token = $2,
			google_refresh_token = CASE WHEN $3 <> '' THEN $3 ELSE google_refresh_token END,
			google_token_expiry = $4,
			google_calendar_id = $5,
			google_connected = true,
			google_oauth_state = NULL,
			updated_at = now()
		WHERE id = $1
	`, counselorID, tok.AccessToken, tok.RefreshToken, expiry, tok.CalendarID)
	return err
}

func (r *CounselorRepository) UpdateAccessToken(ctx context.Context, counselorID, accessToken string, expiry time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE counselors
		SET google_access_token = $2,
			google_token_expiry = $3,
			updated_at = now()
		WHERE id = $1
	`, counselorID, accessToken, expiry)
	return err
}
