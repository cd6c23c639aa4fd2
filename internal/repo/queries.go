package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 3 * time.Second

// Queries fornece acesso aos dados de membros e sessões.
type Queries struct {
	db *pgxpool.Pool
}

// New cria o repositório base.
func New(pool *pgxpool.Pool) *Queries {
	return &Queries{db: pool}
}

const membroColumns = `id, nome, email, senha_hash, papel, instrumento, avatar_url, ativo, criado_em`

func scanMembro(row pgx.Row) (Membro, error) {
	var m Membro
	err := row.Scan(&m.ID, &m.Nome, &m.Email, &m.SenhaHash, &m.Papel, &m.Instrumento, &m.AvatarURL, &m.Ativo, &m.CriadoEm)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Membro{}, ErrNotFound
		}
		return Membro{}, err
	}
	return m, nil
}

// GetMembroByEmail busca membro pelo e-mail normalizado.
func (q *Queries) GetMembroByEmail(ctx context.Context, email string) (Membro, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := q.db.QueryRow(ctx, `SELECT `+membroColumns+` FROM membros WHERE email = $1`, email)
	return scanMembro(row)
}

// GetMembroByID busca membro pelo identificador.
func (q *Queries) GetMembroByID(ctx context.Context, id uuid.UUID) (Membro, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := q.db.QueryRow(ctx, `SELECT `+membroColumns+` FROM membros WHERE id = $1`, id)
	return scanMembro(row)
}

// CreateMembroParams agrupa os campos de criação de conta.
type CreateMembroParams struct {
	Nome        string
	Email       string
	SenhaHash   string
	Instrumento *string
}

// CreateMembro insere novo membro com papel padrão.
func (q *Queries) CreateMembro(ctx context.Context, arg CreateMembroParams) (Membro, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := q.db.QueryRow(ctx, `
		INSERT INTO membros (id, nome, email, senha_hash, papel, instrumento)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+membroColumns,
		uuid.New(), arg.Nome, arg.Email, arg.SenhaHash, PapelMembro, arg.Instrumento)

	m, err := scanMembro(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Membro{}, ErrDuplicado
		}
		return Membro{}, err
	}
	return m, nil
}

// ListMembros devolve o diretório de membros ativos ordenado por nome.
func (q *Queries) ListMembros(ctx context.Context) ([]Membro, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := q.db.Query(ctx, `
		SELECT `+membroColumns+`
		FROM membros
		WHERE ativo
		ORDER BY nome
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var membros []Membro
	for rows.Next() {
		m, err := scanMembro(rows)
		if err != nil {
			return nil, err
		}
		membros = append(membros, m)
	}

	return membros, rows.Err()
}

// UpdatePerfil altera nome e instrumento do próprio membro.
func (q *Queries) UpdatePerfil(ctx context.Context, id uuid.UUID, nome string, instrumento *string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := q.db.Exec(ctx, `
		UPDATE membros SET nome = $2, instrumento = $3 WHERE id = $1
	`, id, nome, instrumento)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAvatarURL grava a URL pública do avatar.
func (q *Queries) UpdateAvatarURL(ctx context.Context, id uuid.UUID, url string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := q.db.Exec(ctx, `UPDATE membros SET avatar_url = $2 WHERE id = $1`, id, url)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertRefreshTokenParams agrupa campos do refresh token persistido.
type InsertRefreshTokenParams struct {
	ID        uuid.UUID
	Subject   uuid.UUID
	TokenHash string
	Expiracao time.Time
	CriadoEm  time.Time
}

// InsertRefreshToken grava novo refresh token.
func (q *Queries) InsertRefreshToken(ctx context.Context, arg InsertRefreshTokenParams) (TokenRefresh, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var t TokenRefresh
	err := q.db.QueryRow(ctx, `
		INSERT INTO tokens_refresh (id, subject, token_hash, expiracao, criado_em, revogado)
		VALUES ($1, $2, $3, $4, $5, false)
		RETURNING id, subject, token_hash, expiracao, criado_em, revogado
	`, arg.ID, arg.Subject, arg.TokenHash, arg.Expiracao, arg.CriadoEm).
		Scan(&t.ID, &t.Subject, &t.TokenHash, &t.Expiracao, &t.CriadoEm, &t.Revogado)
	if err != nil {
		return TokenRefresh{}, err
	}
	return t, nil
}

// GetRefreshTokenByHash busca refresh token pelo hash.
func (q *Queries) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (TokenRefresh, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var t TokenRefresh
	err := q.db.QueryRow(ctx, `
		SELECT id, subject, token_hash, expiracao, criado_em, revogado
		FROM tokens_refresh
		WHERE token_hash = $1
	`, tokenHash).Scan(&t.ID, &t.Subject, &t.TokenHash, &t.Expiracao, &t.CriadoEm, &t.Revogado)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TokenRefresh{}, ErrNotFound
		}
		return TokenRefresh{}, err
	}
	return t, nil
}

// RevokeRefreshToken marca token como revogado.
func (q *Queries) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := q.db.Exec(ctx, `UPDATE tokens_refresh SET revogado = true WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InvalidateOtherRefreshTokens revoga sessões antigas do mesmo membro.
func (q *Queries) InvalidateOtherRefreshTokens(ctx context.Context, subject uuid.UUID, keepHash string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := q.db.Exec(ctx, `
		UPDATE tokens_refresh
		SET revogado = true
		WHERE subject = $1 AND token_hash <> $2 AND NOT revogado
	`, subject, keepHash)
	return err
}
