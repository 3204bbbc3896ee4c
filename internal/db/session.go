package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/david/place-sync/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSessionClosed is returned by a Session that can no longer be used.
var ErrSessionClosed = errors.New("db session closed")

// Session is the unit of work of one sync run: a transaction committed on every
// Flush. Each statement runs inside a savepoint so a failing entry does not
// abort the transaction; the session breaks only when the connection or a
// commit fails.
type Session struct {
	pool   *pgxpool.Pool
	tx     pgx.Tx
	broken error
}

// Begin starts a Session.
func (s *Store) Begin(ctx context.Context) (*Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin session: %w", err)
	}
	return &Session{pool: s.pool, tx: tx}, nil
}

// Usable reports whether the session can still accept writes.
func (s *Session) Usable() bool {
	return s.broken == nil && s.tx != nil && !s.tx.Conn().IsClosed()
}

// withSavepoint runs fn inside a savepoint, rolling back to it on error.
func (s *Session) withSavepoint(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if !s.Usable() {
		if s.broken != nil {
			return fmt.Errorf("%w: %v", ErrSessionClosed, s.broken)
		}
		return ErrSessionClosed
	}

	sp, err := s.tx.Begin(ctx)
	if err != nil {
		s.broken = err
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := fn(sp); err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			s.broken = rbErr
		}
		return err
	}
	if err := sp.Commit(ctx); err != nil {
		s.broken = err
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

func (s *Session) FindTender(ctx context.Context, externalID string) (*models.Tender, error) {
	var t *models.Tender
	err := s.withSavepoint(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, "SELECT "+tenderCols+" FROM tenders WHERE external_id = $1", externalID)
		found, err := scanTender(row.Scan)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		t = found
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("find tender %s: %w", externalID, err)
	}
	return t, nil
}

func (s *Session) FindAuthority(ctx context.Context, taxID string) (*models.ContractingAuthority, error) {
	var a *models.ContractingAuthority
	err := s.withSavepoint(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, "SELECT "+authorityCols+" FROM contracting_authorities WHERE tax_id = $1", taxID)
		found, err := scanAuthority(row.Scan)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		a = found
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("find authority %s: %w", taxID, err)
	}
	return a, nil
}

func (s *Session) SaveAuthority(ctx context.Context, a *models.ContractingAuthority) error {
	return s.withSavepoint(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			INSERT INTO contracting_authorities (
				tax_id, name, dir3, platform_id, administration_type, activity_code,
				street, postal_code, city, province, email, phone, profile_url, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (tax_id) DO UPDATE SET
				name = EXCLUDED.name,
				dir3 = EXCLUDED.dir3,
				platform_id = EXCLUDED.platform_id,
				administration_type = EXCLUDED.administration_type,
				activity_code = EXCLUDED.activity_code,
				street = EXCLUDED.street,
				postal_code = EXCLUDED.postal_code,
				city = EXCLUDED.city,
				province = EXCLUDED.province,
				email = EXCLUDED.email,
				phone = EXCLUDED.phone,
				profile_url = EXCLUDED.profile_url,
				updated_at = EXCLUDED.updated_at
			RETURNING id, created_at`,
			a.TaxID, a.Name, nilIfEmpty(a.DIR3), nilIfEmpty(a.PlatformID),
			nilIfEmpty(a.AdministrationType), nilIfEmpty(a.ActivityCode),
			nilIfEmpty(a.Street), nilIfEmpty(a.PostalCode), nilIfEmpty(a.City), nilIfEmpty(a.Province),
			nilIfEmpty(a.Email), nilIfEmpty(a.Phone), nilIfEmpty(a.ProfileURL), a.UpdatedAt,
		).Scan(&a.ID, &a.CreatedAt)
	})
}

func (s *Session) SaveTender(ctx context.Context, t *models.Tender) error {
	criteria, err := jsonArray(t.AwardCriteria)
	if err != nil {
		return fmt.Errorf("encode award criteria: %w", err)
	}
	documents, err := jsonArray(t.Documents)
	if err != nil {
		return fmt.Errorf("encode documents: %w", err)
	}

	return s.withSavepoint(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			INSERT INTO tenders (
				external_id, folder_code, title, status_code, status_description,
				contract_type_code, contract_type_description, subtype,
				amount_excl_tax, amount_incl_tax, cpv_codes, region, region_code,
				procedure_code, procedure_description, published_at, deadline_at, duration_months,
				url, description, award_criteria, documents, awarded_at, offer_count,
				awardee_name, awardee_tax_id, award_amount, authority_id, raw_xml, updated_at
			) VALUES (
				$1, $2, $3, $4, $5,
				$6, $7, $8,
				$9::text::numeric, $10::text::numeric, $11, $12, $13,
				$14, $15, $16, $17, $18,
				$19, $20, $21, $22, $23, $24,
				$25, $26, $27::text::numeric, $28, $29, $30
			)
			ON CONFLICT (external_id) DO UPDATE SET
				folder_code = EXCLUDED.folder_code,
				title = EXCLUDED.title,
				status_code = EXCLUDED.status_code,
				status_description = EXCLUDED.status_description,
				contract_type_code = EXCLUDED.contract_type_code,
				contract_type_description = EXCLUDED.contract_type_description,
				subtype = EXCLUDED.subtype,
				amount_excl_tax = EXCLUDED.amount_excl_tax,
				amount_incl_tax = EXCLUDED.amount_incl_tax,
				cpv_codes = EXCLUDED.cpv_codes,
				region = EXCLUDED.region,
				region_code = EXCLUDED.region_code,
				procedure_code = EXCLUDED.procedure_code,
				procedure_description = EXCLUDED.procedure_description,
				published_at = EXCLUDED.published_at,
				deadline_at = EXCLUDED.deadline_at,
				duration_months = EXCLUDED.duration_months,
				url = EXCLUDED.url,
				description = EXCLUDED.description,
				award_criteria = EXCLUDED.award_criteria,
				documents = EXCLUDED.documents,
				awarded_at = EXCLUDED.awarded_at,
				offer_count = EXCLUDED.offer_count,
				awardee_name = EXCLUDED.awardee_name,
				awardee_tax_id = EXCLUDED.awardee_tax_id,
				award_amount = EXCLUDED.award_amount,
				authority_id = COALESCE(EXCLUDED.authority_id, tenders.authority_id),
				raw_xml = EXCLUDED.raw_xml,
				updated_at = EXCLUDED.updated_at
			RETURNING id, created_at`,
			t.ExternalID(), t.FolderCode, t.Title, t.StatusCode, t.StatusDescription,
			t.ContractTypeCode, t.ContractTypeDescription, nilIfEmpty(t.Subtype),
			decimalParam(t.AmountExclTax), decimalParam(t.AmountInclTax), nonNilStrings(t.CPVCodes),
			nilIfEmpty(t.Region), nilIfEmpty(t.RegionCode),
			nilIfEmpty(t.ProcedureCode), nilIfEmpty(t.ProcedureDescription),
			t.PublishedAt, t.DeadlineAt, t.DurationMonths,
			nilIfEmpty(t.URL), nilIfEmpty(t.Description), criteria, documents, t.AwardedAt, t.OfferCount,
			nilIfEmpty(t.AwardeeName), nilIfEmpty(t.AwardeeTaxID), decimalParam(t.AwardAmount),
			t.AuthorityID, nilIfEmpty(t.RawXML), t.UpdatedAt,
		).Scan(&t.ID, &t.CreatedAt)
	})
}

// Flush commits the current transaction and opens the next one.
func (s *Session) Flush(ctx context.Context) error {
	if !s.Usable() {
		return ErrSessionClosed
	}
	if err := s.tx.Commit(ctx); err != nil {
		s.broken = err
		return fmt.Errorf("commit: %w", err)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		s.tx = nil
		s.broken = err
		return fmt.Errorf("begin: %w", err)
	}
	s.tx = tx
	return nil
}

// Close rolls back anything not flushed.
func (s *Session) Close(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback(ctx)
	s.tx = nil
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
