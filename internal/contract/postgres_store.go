package contract

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists contract data in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed contract store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const contractColumns = `
	id, application_id,
	leader_user_id, leader_nickname, leader_wallet,
	artist_user_id, artist_nickname, artist_wallet,
	title, description, start_at, end_at, total_amount, status,
	leader_sig_signer, leader_sig_signature, leader_sig_typed_hash, leader_sig_signed_at,
	artist_sig_signer, artist_sig_signature, artist_sig_typed_hash, artist_sig_signed_at,
	nft_token_id, nft_mint_tx_hash, nft_onchain_status, nft_explorer_url, nft_bundle_url,
	cancel_requested_by, cancel_reason, cancel_resolution, cancel_requested_at, cancel_resolved_at,
	order_id, settled_at, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, c *Contract) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO contracts (`+contractColumns+`
		) VALUES (
			$1, $2,
			$3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18,
			$19, $20, $21, $22,
			$23, $24, $25, $26, $27,
			$28, $29, $30, $31, $32,
			$33, $34, $35, $36
		)`,
		c.ID, c.ApplicationID,
		c.Leader.UserID, c.Leader.Nickname, c.Leader.WalletAddress,
		c.Artist.UserID, c.Artist.Nickname, c.Artist.WalletAddress,
		c.Title, c.Description, c.StartAt, c.EndAt, c.TotalAmount, string(c.Status),
		sigSigner(c.LeaderSignature), sigSignature(c.LeaderSignature), sigHash(c.LeaderSignature), sigTime(c.LeaderSignature),
		sigSigner(c.ArtistSignature), sigSignature(c.ArtistSignature), sigHash(c.ArtistSignature), sigTime(c.ArtistSignature),
		nftNullString(c.NFT, func(n *NFTInfo) string { return n.TokenID }),
		nftNullString(c.NFT, func(n *NFTInfo) string { return n.MintTxHash }),
		nftNullString(c.NFT, func(n *NFTInfo) string { return string(n.OnchainStatus) }),
		nftNullString(c.NFT, func(n *NFTInfo) string { return n.ExplorerURL }),
		nftNullString(c.NFT, func(n *NFTInfo) string { return n.BundleURL }),
		cancelRequestedBy(c.Cancellation), cancelReason(c.Cancellation), cancelResolution(c.Cancellation),
		cancelRequestedAt(c.Cancellation), cancelResolvedAt(c.Cancellation),
		nullString(c.OrderID), nullTime(c.SettledAt), c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Contract, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE id = $1`, id)

	c, err := scanContract(row)
	if err == sql.ErrNoRows {
		return nil, ErrContractNotFound
	}
	return c, err
}

func (p *PostgresStore) GetByApplication(ctx context.Context, applicationID string) (*Contract, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE application_id = $1
		 ORDER BY created_at DESC LIMIT 1`, applicationID)

	c, err := scanContract(row)
	if err == sql.ErrNoRows {
		return nil, ErrContractNotFound
	}
	return c, err
}

func (p *PostgresStore) Update(ctx context.Context, c *Contract) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE contracts SET
			description = $1, start_at = $2, end_at = $3, total_amount = $4,
			status = $5,
			leader_sig_signer = $6, leader_sig_signature = $7, leader_sig_typed_hash = $8, leader_sig_signed_at = $9,
			artist_sig_signer = $10, artist_sig_signature = $11, artist_sig_typed_hash = $12, artist_sig_signed_at = $13,
			nft_token_id = $14, nft_mint_tx_hash = $15, nft_onchain_status = $16, nft_explorer_url = $17, nft_bundle_url = $18,
			cancel_requested_by = $19, cancel_reason = $20, cancel_resolution = $21,
			cancel_requested_at = $22, cancel_resolved_at = $23,
			order_id = $24, settled_at = $25, updated_at = $26
		WHERE id = $27`,
		c.Description, c.StartAt, c.EndAt, c.TotalAmount,
		string(c.Status),
		sigSigner(c.LeaderSignature), sigSignature(c.LeaderSignature), sigHash(c.LeaderSignature), sigTime(c.LeaderSignature),
		sigSigner(c.ArtistSignature), sigSignature(c.ArtistSignature), sigHash(c.ArtistSignature), sigTime(c.ArtistSignature),
		nftNullString(c.NFT, func(n *NFTInfo) string { return n.TokenID }),
		nftNullString(c.NFT, func(n *NFTInfo) string { return n.MintTxHash }),
		nftNullString(c.NFT, func(n *NFTInfo) string { return string(n.OnchainStatus) }),
		nftNullString(c.NFT, func(n *NFTInfo) string { return n.ExplorerURL }),
		nftNullString(c.NFT, func(n *NFTInfo) string { return n.BundleURL }),
		cancelRequestedBy(c.Cancellation), cancelReason(c.Cancellation), cancelResolution(c.Cancellation),
		cancelRequestedAt(c.Cancellation), cancelResolvedAt(c.Cancellation),
		nullString(c.OrderID), nullTime(c.SettledAt), c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrContractNotFound
	}
	return nil
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string, status string, limit int) ([]*Contract, error) {
	var rows *sql.Rows
	var err error

	if status != "" {
		rows, err = p.db.QueryContext(ctx, `
			SELECT `+contractColumns+` FROM contracts
			WHERE (leader_user_id = $1 OR artist_user_id = $1) AND status = $2
			ORDER BY created_at DESC
			LIMIT $3`, userID, status, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `
			SELECT `+contractColumns+` FROM contracts
			WHERE leader_user_id = $1 OR artist_user_id = $1
			ORDER BY created_at DESC
			LIMIT $2`, userID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanContracts(rows)
}

func (p *PostgresStore) ListMintPending(ctx context.Context, limit int) ([]*Contract, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+contractColumns+` FROM contracts
		WHERE nft_onchain_status = 'PENDING'
		ORDER BY updated_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanContracts(rows)
}

func (p *PostgresStore) ListCancellationPending(ctx context.Context, limit int) ([]*Contract, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+contractColumns+` FROM contracts
		WHERE status = 'CANCELLATION_REQUESTED'
		ORDER BY updated_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanContracts(rows)
}

// --- scan helpers ---

// contractScanner is satisfied by both *sql.Row and *sql.Rows.
type contractScanner interface {
	Scan(dest ...interface{}) error
}

func scanContract(s contractScanner) (*Contract, error) {
	c := &Contract{}
	var (
		status string

		leaderSigner, leaderSig, leaderHash    sql.NullString
		leaderSignedAt                         sql.NullTime
		artistSigner, artistSig, artistHash    sql.NullString
		artistSignedAt                         sql.NullTime
		tokenID, txHash, onchain, explorerURL  sql.NullString
		bundleURL                              sql.NullString
		cancelBy, cancelRsn, cancelRes         sql.NullString
		cancelRequestedAt, cancelResolvedAt    sql.NullTime
		orderID                                sql.NullString
		settledAt                              sql.NullTime
	)

	err := s.Scan(
		&c.ID, &c.ApplicationID,
		&c.Leader.UserID, &c.Leader.Nickname, &c.Leader.WalletAddress,
		&c.Artist.UserID, &c.Artist.Nickname, &c.Artist.WalletAddress,
		&c.Title, &c.Description, &c.StartAt, &c.EndAt, &c.TotalAmount, &status,
		&leaderSigner, &leaderSig, &leaderHash, &leaderSignedAt,
		&artistSigner, &artistSig, &artistHash, &artistSignedAt,
		&tokenID, &txHash, &onchain, &explorerURL, &bundleURL,
		&cancelBy, &cancelRsn, &cancelRes, &cancelRequestedAt, &cancelResolvedAt,
		&orderID, &settledAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = Status(status)
	if leaderSigner.Valid {
		c.LeaderSignature = &SignedPayload{
			Signer:    leaderSigner.String,
			Signature: leaderSig.String,
			TypedHash: leaderHash.String,
			SignedAt:  leaderSignedAt.Time,
		}
	}
	if artistSigner.Valid {
		c.ArtistSignature = &SignedPayload{
			Signer:    artistSigner.String,
			Signature: artistSig.String,
			TypedHash: artistHash.String,
			SignedAt:  artistSignedAt.Time,
		}
	}
	if txHash.Valid {
		c.NFT = &NFTInfo{
			TokenID:       tokenID.String,
			MintTxHash:    txHash.String,
			OnchainStatus: OnchainStatus(onchain.String),
			ExplorerURL:   explorerURL.String,
			BundleURL:     bundleURL.String,
		}
	}
	if cancelBy.Valid {
		c.Cancellation = &CancellationRequest{
			RequestedBy: cancelBy.String,
			Reason:      cancelRsn.String,
			Resolution:  Resolution(cancelRes.String),
			RequestedAt: cancelRequestedAt.Time,
		}
		if cancelResolvedAt.Valid {
			c.Cancellation.ResolvedAt = &cancelResolvedAt.Time
		}
	}
	c.OrderID = orderID.String
	if settledAt.Valid {
		c.SettledAt = &settledAt.Time
	}

	return c, nil
}

func scanContracts(rows *sql.Rows) ([]*Contract, error) {
	var result []*Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// --- nullable helpers ---

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func sigSigner(p *SignedPayload) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: p.Signer, Valid: true}
}

func sigSignature(p *SignedPayload) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: p.Signature, Valid: true}
}

func sigHash(p *SignedPayload) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: p.TypedHash, Valid: true}
}

func sigTime(p *SignedPayload) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: p.SignedAt, Valid: true}
}

func nftNullString(n *NFTInfo, field func(*NFTInfo) string) sql.NullString {
	if n == nil {
		return sql.NullString{}
	}
	return nullString(field(n))
}

func cancelRequestedBy(cr *CancellationRequest) sql.NullString {
	if cr == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: cr.RequestedBy, Valid: true}
}

func cancelReason(cr *CancellationRequest) sql.NullString {
	if cr == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: cr.Reason, Valid: true}
}

func cancelResolution(cr *CancellationRequest) sql.NullString {
	if cr == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(cr.Resolution), Valid: true}
}

func cancelRequestedAt(cr *CancellationRequest) sql.NullTime {
	if cr == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: cr.RequestedAt, Valid: true}
}

func cancelResolvedAt(cr *CancellationRequest) sql.NullTime {
	if cr == nil {
		return sql.NullTime{}
	}
	return nullTime(cr.ResolvedAt)
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
