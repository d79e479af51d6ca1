package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/radiusdt/leadtrack/internal/models"
)

const leadColumns = `id, lead_id, offer_id, campaign, adset, ad,
	sub1, sub2, sub3, sub4, sub5, sub6, sub7, sub8,
	status, payout, category, notification_type, utm_source, utm_medium,
	date, created_at`

// PostgresLeadStore implements LeadStore using PostgreSQL.
type PostgresLeadStore struct {
	pool *pgxpool.Pool
	tz   string
}

func NewPostgresLeadStore(pool *pgxpool.Pool, tz string) *PostgresLeadStore {
	return &PostgresLeadStore{pool: pool, tz: tz}
}

// effectiveDate is the SQL expression for the attribution date with the
// created_at fallback for rows predating the date column.
func (s *PostgresLeadStore) effectiveDate() string {
	return fmt.Sprintf(`COALESCE(date, to_char(created_at AT TIME ZONE '%s', 'YYYY-MM-DD'))`, s.tz)
}

func scanLead(row pgx.Row) (*models.LeadRecord, error) {
	var l models.LeadRecord
	err := row.Scan(
		&l.ID, &l.LeadID, &l.OfferID, &l.Campaign, &l.Adset, &l.Ad,
		&l.Sub1, &l.Sub2, &l.Sub3, &l.Sub4, &l.Sub5, &l.Sub6, &l.Sub7, &l.Sub8,
		&l.Status, &l.Payout, &l.Category, &l.NotificationType, &l.UTMSource, &l.UTMMedium,
		&l.Date, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *PostgresLeadStore) FindByLeadID(ctx context.Context, leadID string) (*models.LeadRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads WHERE lead_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`, leadID)

	l, err := scanLead(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find lead by lead_id: %w", err)
	}
	return l, nil
}

func (s *PostgresLeadStore) GetByID(ctx context.Context, id int64) (*models.LeadRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	l, err := scanLead(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	return l, nil
}

func (s *PostgresLeadStore) FindBestMatch(ctx context.Context, q MatchQuery) (*models.LeadRecord, error) {
	// One query for all three tiers; the CASE ranks them so the highest
	// tier with any hit wins, oldest first within it.
	row := s.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE ($1 <> '' AND lead_id = $1)
		   OR ($2 <> '' AND offer_id = $2)
		   OR (notification_type = 'lead'
		       AND ($3 <> '' OR $4 <> '' OR $5 <> '' OR $6 <> '')
		       AND COALESCE(sub1, '') = $3
		       AND COALESCE(campaign, '') = $4
		       AND COALESCE(adset, '') = $5
		       AND COALESCE(ad, '') = $6)
		ORDER BY
			CASE
				WHEN $1 <> '' AND lead_id = $1 THEN 1
				WHEN $2 <> '' AND offer_id = $2 THEN 2
				ELSE 3
			END,
			created_at ASC, id ASC
		LIMIT 1
	`, q.LeadID, q.OfferID, q.Sub1, q.Campaign, q.Adset, q.Ad)

	l, err := scanLead(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve lead match: %w", err)
	}
	return l, nil
}

func (s *PostgresLeadStore) Insert(ctx context.Context, rec *models.LeadRecord) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO leads (
			lead_id, offer_id, campaign, adset, ad,
			sub1, sub2, sub3, sub4, sub5, sub6, sub7, sub8,
			status, payout, category, notification_type, utm_source, utm_medium,
			date, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		RETURNING id
	`,
		rec.LeadID, rec.OfferID, rec.Campaign, rec.Adset, rec.Ad,
		rec.Sub1, rec.Sub2, rec.Sub3, rec.Sub4, rec.Sub5, rec.Sub6, rec.Sub7, rec.Sub8,
		rec.Status, rec.Payout, rec.Category, rec.NotificationType, rec.UTMSource, rec.UTMMedium,
		rec.Date, rec.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert lead: %w", err)
	}
	rec.ID = id
	return id, nil
}

func (s *PostgresLeadStore) UpdateByID(ctx context.Context, id int64, upd models.LeadUpdate) error {
	// date and created_at are deliberately absent from the SET list.
	_, err := s.pool.Exec(ctx, `
		UPDATE leads SET
			notification_type = $2,
			status = COALESCE($3, status),
			payout = COALESCE($4, payout),
			lead_id = COALESCE(lead_id, $5),
			offer_id = COALESCE(offer_id, $6),
			category = COALESCE($7, category)
		WHERE id = $1
	`, id, upd.NotificationType, upd.Status, upd.Payout, upd.LeadID, upd.OfferID, upd.Category)
	if err != nil {
		return fmt.Errorf("failed to update lead: %w", err)
	}
	return nil
}

func (s *PostgresLeadStore) List(ctx context.Context, f LeadFilter) ([]*models.LeadRecord, error) {
	where := []string{}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Date != "" {
		where = append(where, s.effectiveDate()+" = "+arg(f.Date))
	} else {
		if f.StartDate != "" {
			where = append(where, s.effectiveDate()+" >= "+arg(f.StartDate))
		}
		if f.EndDate != "" {
			where = append(where, s.effectiveDate()+" <= "+arg(f.EndDate))
		}
	}
	if f.OfferID != "" {
		where = append(where, "offer_id = "+arg(f.OfferID))
	}
	if f.Category != "" {
		where = append(where, "category = "+arg(f.Category))
	}

	query := `SELECT ` + leadColumns + ` FROM leads`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + s.effectiveDate() + " DESC, created_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	defer rows.Close()

	var out []*models.LeadRecord
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *PostgresLeadStore) ListAll(ctx context.Context) ([]*models.LeadRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+leadColumns+` FROM leads ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	defer rows.Close()

	var out []*models.LeadRecord
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *PostgresLeadStore) ClearAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM leads`); err != nil {
		return fmt.Errorf("failed to clear leads: %w", err)
	}
	return nil
}

// =============================================
// PRODUCTS
// =============================================

// PostgresProductRepo implements ProductRepo using PostgreSQL.
type PostgresProductRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresProductRepo(pool *pgxpool.Pool) *PostgresProductRepo {
	return &PostgresProductRepo{pool: pool}
}

func (r *PostgresProductRepo) ListAll(ctx context.Context) ([]*models.Product, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, offer_id, account_name, created_at, updated_at
		FROM products ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var out []*models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.OfferID, &p.AccountName, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *PostgresProductRepo) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	var p models.Product
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, offer_id, account_name, created_at, updated_at
		FROM products WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.OfferID, &p.AccountName, &p.CreatedAt, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

func (r *PostgresProductRepo) FindByOfferID(ctx context.Context, offerID string) (*models.Product, error) {
	var p models.Product
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, offer_id, account_name, created_at, updated_at
		FROM products WHERE offer_id = $1
		ORDER BY id ASC LIMIT 1
	`, offerID).Scan(&p.ID, &p.Name, &p.OfferID, &p.AccountName, &p.CreatedAt, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find product by offer_id: %w", err)
	}
	return &p, nil
}

func (r *PostgresProductRepo) Create(ctx context.Context, p *models.Product) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO products (name, offer_id, account_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, p.Name, p.OfferID, p.AccountName, p.CreatedAt, p.UpdatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create product: %w", err)
	}
	p.ID = id
	return id, nil
}

func (r *PostgresProductRepo) Update(ctx context.Context, p *models.Product) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE products SET name = $2, offer_id = $3, account_name = $4, updated_at = $5
		WHERE id = $1
	`, p.ID, p.Name, p.OfferID, p.AccountName, p.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to update product: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresProductRepo) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete product: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresProductRepo) ListAccounts(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT account_name FROM products
		WHERE account_name <> '' ORDER BY account_name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// =============================================
// CAMPAIGN STATS
// =============================================

// statsColumns guards the counter column names interpolated into SQL.
var statsColumns = map[string]bool{
	"leads":      true,
	"conversoes": true,
	"trash":      true,
	"cancel":     true,
}

// PostgresStatsRepo implements StatsRepo using PostgreSQL.
type PostgresStatsRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresStatsRepo(pool *pgxpool.Pool) *PostgresStatsRepo {
	return &PostgresStatsRepo{pool: pool}
}

func (r *PostgresStatsRepo) Increment(ctx context.Context, campaign, adset, ad, column string, meta models.StatsMeta) error {
	if !statsColumns[column] {
		return fmt.Errorf("unknown stats column %q", column)
	}

	initial := map[string]int{"leads": 0, "conversoes": 0, "trash": 0, "cancel": 0}
	initial[column] = 1

	_, err := r.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO campaign_stats (
			campaign, campaign_id, adset, adset_id, ad, ad_id,
			placement, site_source, leads, conversoes, trash, cancel, updated_at
		) VALUES ($1, NULLIF($2,''), $3, NULLIF($4,''), $5, NULLIF($6,''),
			NULLIF($7,''), NULLIF($8,''), $9, $10, $11, $12, $13)
		ON CONFLICT (campaign, adset, ad) DO UPDATE SET
			%s = campaign_stats.%s + 1,
			campaign_id = COALESCE(NULLIF(EXCLUDED.campaign_id,''), campaign_stats.campaign_id),
			adset_id    = COALESCE(NULLIF(EXCLUDED.adset_id,''), campaign_stats.adset_id),
			ad_id       = COALESCE(NULLIF(EXCLUDED.ad_id,''), campaign_stats.ad_id),
			placement   = COALESCE(NULLIF(EXCLUDED.placement,''), campaign_stats.placement),
			site_source = COALESCE(NULLIF(EXCLUDED.site_source,''), campaign_stats.site_source),
			updated_at  = EXCLUDED.updated_at
	`, column, column),
		campaign, meta.CampaignID, adset, meta.AdsetID, ad, meta.AdID,
		meta.Placement, meta.SiteSource,
		initial["leads"], initial["conversoes"], initial["trash"], initial["cancel"],
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to increment campaign stats: %w", err)
	}
	return nil
}

func (r *PostgresStatsRepo) Transition(ctx context.Context, campaign, adset, ad, oldColumn, newColumn string, meta models.StatsMeta) error {
	if !statsColumns[oldColumn] || !statsColumns[newColumn] {
		return fmt.Errorf("unknown stats column %q/%q", oldColumn, newColumn)
	}

	tag, err := r.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE campaign_stats SET
			%s = GREATEST(%s - 1, 0),
			%s = %s + 1,
			campaign_id = COALESCE(NULLIF($4,''), campaign_id),
			adset_id    = COALESCE(NULLIF($5,''), adset_id),
			ad_id       = COALESCE(NULLIF($6,''), ad_id),
			placement   = COALESCE(NULLIF($7,''), placement),
			site_source = COALESCE(NULLIF($8,''), site_source),
			updated_at  = $9
		WHERE campaign = $1 AND adset = $2 AND ad = $3
	`, oldColumn, oldColumn, newColumn, newColumn),
		campaign, adset, ad,
		meta.CampaignID, meta.AdsetID, meta.AdID, meta.Placement, meta.SiteSource,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to transition campaign stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Bucket never created; count the new state only.
		return r.Increment(ctx, campaign, adset, ad, newColumn, meta)
	}
	return nil
}

func (r *PostgresStatsRepo) ListAll(ctx context.Context) ([]*models.CampaignStats, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT campaign, COALESCE(campaign_id,''), adset, COALESCE(adset_id,''),
		       ad, COALESCE(ad_id,''), COALESCE(placement,''), COALESCE(site_source,''),
		       leads, conversoes, trash, cancel, updated_at
		FROM campaign_stats ORDER BY campaign, adset, ad
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaign stats: %w", err)
	}
	defer rows.Close()

	var out []*models.CampaignStats
	for rows.Next() {
		var cs models.CampaignStats
		if err := rows.Scan(
			&cs.Campaign, &cs.CampaignID, &cs.Adset, &cs.AdsetID,
			&cs.Ad, &cs.AdID, &cs.Placement, &cs.SiteSource,
			&cs.Leads, &cs.Conversoes, &cs.Trash, &cs.Cancel, &cs.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &cs)
	}
	return out, rows.Err()
}

func (r *PostgresStatsRepo) ClearAll(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM campaign_stats`); err != nil {
		return fmt.Errorf("failed to clear campaign stats: %w", err)
	}
	return nil
}

// =============================================
// PAGE VISITS
// =============================================

// PostgresVisitRepo implements VisitRepo using PostgreSQL.
type PostgresVisitRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresVisitRepo(pool *pgxpool.Pool) *PostgresVisitRepo {
	return &PostgresVisitRepo{pool: pool}
}

func (r *PostgresVisitRepo) Upsert(ctx context.Context, v *models.VisitStats) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO page_visits (url, sub2, sessions, unique_users, date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (url, date) DO UPDATE SET
			sub2 = EXCLUDED.sub2,
			sessions = EXCLUDED.sessions,
			unique_users = EXCLUDED.unique_users
	`, v.URL, v.Sub2, v.Sessions, v.UniqueUsers, v.Date)
	if err != nil {
		return fmt.Errorf("failed to upsert page visits: %w", err)
	}
	return nil
}

func (r *PostgresVisitRepo) List(ctx context.Context, startDate, endDate string) ([]*models.VisitStats, error) {
	where := []string{}
	args := []interface{}{}
	if startDate != "" {
		args = append(args, startDate)
		where = append(where, fmt.Sprintf("date >= $%d", len(args)))
	}
	if endDate != "" {
		args = append(args, endDate)
		where = append(where, fmt.Sprintf("date <= $%d", len(args)))
	}

	query := `SELECT url, sub2, sessions, unique_users, date FROM page_visits`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, url ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list page visits: %w", err)
	}
	defer rows.Close()

	var out []*models.VisitStats
	for rows.Next() {
		var v models.VisitStats
		if err := rows.Scan(&v.URL, &v.Sub2, &v.Sessions, &v.UniqueUsers, &v.Date); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}
