package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getListingByID = `
SELECT id, owner_id, title, boosted_until, sponsored_until, promotion_updated_at, created_at
FROM listings
WHERE id = $1
`

// GetListingByID fetches a marketplace listing.
func (q *Queries) GetListingByID(ctx context.Context, id pgtype.UUID) (Listing, error) {
	row := q.db.QueryRow(ctx, getListingByID, id)
	var l Listing
	err := row.Scan(&l.ID, &l.OwnerID, &l.Title, &l.BoostedUntil, &l.SponsoredUntil, &l.PromotionUpdatedAt, &l.CreatedAt)
	return l, err
}

// ApplyListingBoostParams sets a listing's boost window.
type ApplyListingBoostParams struct {
	ID           pgtype.UUID
	BoostedUntil pgtype.Timestamptz
	UpdatedAt    pgtype.Timestamptz
}

const applyListingBoost = `
UPDATE listings
SET boosted_until = $2, promotion_updated_at = $3
WHERE id = $1
`

// ApplyListingBoost overwrites boosted_until. A new purchase resets the
// window from the current moment; it never extends a prior expiry.
func (q *Queries) ApplyListingBoost(ctx context.Context, arg ApplyListingBoostParams) (int64, error) {
	tag, err := q.db.Exec(ctx, applyListingBoost, arg.ID, arg.BoostedUntil, arg.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ApplyListingSponsorshipParams sets a listing's sponsorship window.
type ApplyListingSponsorshipParams struct {
	ID             pgtype.UUID
	SponsoredUntil pgtype.Timestamptz
	UpdatedAt      pgtype.Timestamptz
}

const applyListingSponsorship = `
UPDATE listings
SET sponsored_until = $2, promotion_updated_at = $3
WHERE id = $1
`

// ApplyListingSponsorship overwrites sponsored_until, leaving the boost
// window untouched.
func (q *Queries) ApplyListingSponsorship(ctx context.Context, arg ApplyListingSponsorshipParams) (int64, error) {
	tag, err := q.db.Exec(ctx, applyListingSponsorship, arg.ID, arg.SponsoredUntil, arg.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
