package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/backflowhq/platform/libs/db"
)

// CompanyEntitlements is the locally cached slice of a company's billing
// tier, fed by billing.subscription.activated.v1 events.
type CompanyEntitlements struct {
	CompanyID              string
	Tier                   string
	MaxMonthlyAppointments int
}

type EntitlementsRepository struct {
	pool *db.Pool
}

func NewEntitlementsRepository(pool *db.Pool) *EntitlementsRepository {
	return &EntitlementsRepository{pool: pool}
}

func (r *EntitlementsRepository) Upsert(ctx context.Context, tx pgx.Tx, ent CompanyEntitlements) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO company_entitlements (company_id, tier, max_monthly_appointments)
		VALUES ($1, $2, $3)
		ON CONFLICT (company_id)
		DO UPDATE SET tier = EXCLUDED.tier,
		              max_monthly_appointments = EXCLUDED.max_monthly_appointments,
		              updated_at = now()
	`, ent.CompanyID, ent.Tier, ent.MaxMonthlyAppointments)
	return err
}

func (r *EntitlementsRepository) Get(ctx context.Context, tx pgx.Tx, companyID string) (CompanyEntitlements, bool, error) {
	var ent CompanyEntitlements
	err := tx.QueryRow(ctx, `
		SELECT company_id::text, tier, max_monthly_appointments
		FROM company_entitlements
		WHERE company_id = $1
	`, companyID).Scan(&ent.CompanyID, &ent.Tier, &ent.MaxMonthlyAppointments)
	if errors.Is(err, pgx.ErrNoRows) {
		return CompanyEntitlements{}, false, nil
	}
	if err != nil {
		return CompanyEntitlements{}, false, err
	}
	return ent, true, nil
}
