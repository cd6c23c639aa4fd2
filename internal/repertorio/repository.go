package repertorio

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bandafrc/api/internal/db"
)

var errNotFound = errors.New("not found")

const dbTimeout = 3 * time.Second

// Partitura é uma peça do repertório com o PDF associado.
type Partitura struct {
	ID         uuid.UUID `json:"id"`
	Titulo     string    `json:"titulo"`
	Autor      *string   `json:"autor,omitempty"`
	Link       *string   `json:"link,omitempty"`
	ArquivoKey string    `json:"-"`
	MembroID   uuid.UUID `json:"membro_id"`
	CriadoEm   time.Time `json:"criado_em"`
}

// Avaliacao é a classificação (1 a 5) de um membro para uma partitura.
type Avaliacao struct {
	PartituraID   uuid.UUID
	MembroID      uuid.UUID
	Classificacao int
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const partituraColumns = `id, titulo, autor, link, arquivo_key, membro_id, criado_em`

func scanPartitura(row pgx.Row) (Partitura, error) {
	var p Partitura
	err := row.Scan(&p.ID, &p.Titulo, &p.Autor, &p.Link, &p.ArquivoKey, &p.MembroID, &p.CriadoEm)
	return p, err
}

func (r *Repository) ListPartituras(ctx context.Context) ([]Partitura, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `
        SELECT `+partituraColumns+`
          FROM partituras
         ORDER BY criado_em DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	partituras := make([]Partitura, 0)
	for rows.Next() {
		p, err := scanPartitura(rows)
		if err != nil {
			return nil, err
		}
		partituras = append(partituras, p)
	}
	return partituras, rows.Err()
}

func (r *Repository) GetPartitura(ctx context.Context, id uuid.UUID) (Partitura, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	p, err := scanPartitura(r.db.QueryRow(ctx, `
        SELECT `+partituraColumns+`
          FROM partituras
         WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Partitura{}, errNotFound
		}
		return Partitura{}, err
	}
	return p, nil
}

type CreatePartituraParams struct {
	Titulo     string
	Autor      *string
	Link       *string
	ArquivoKey string
	MembroID   uuid.UUID
}

func (r *Repository) CreatePartitura(ctx context.Context, params CreatePartituraParams) (Partitura, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return scanPartitura(r.db.QueryRow(ctx, `
        INSERT INTO partituras (titulo, autor, link, arquivo_key, membro_id)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING `+partituraColumns,
		params.Titulo, params.Autor, params.Link, params.ArquivoKey, params.MembroID))
}

type UpdatePartituraParams struct {
	ID         uuid.UUID
	Titulo     string
	Autor      *string
	Link       *string
	ArquivoKey string
}

func (r *Repository) UpdatePartitura(ctx context.Context, params UpdatePartituraParams) (Partitura, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	p, err := scanPartitura(r.db.QueryRow(ctx, `
        UPDATE partituras
           SET titulo = $2, autor = $3, link = $4, arquivo_key = $5
         WHERE id = $1
        RETURNING `+partituraColumns,
		params.ID, params.Titulo, params.Autor, params.Link, params.ArquivoKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Partitura{}, errNotFound
		}
		return Partitura{}, err
	}
	return p, nil
}

// DeletePartitura remove avaliações e a própria linha na mesma transação.
func (r *Repository) DeletePartitura(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return db.WithTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM avaliacoes WHERE partitura_id = $1`, id); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `DELETE FROM partituras WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errNotFound
		}
		return nil
	})
}

func (r *Repository) UpsertAvaliacao(ctx context.Context, membroID, partituraID uuid.UUID, classificacao int) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := r.db.Exec(ctx, `
        INSERT INTO avaliacoes (membro_id, partitura_id, classificacao)
        VALUES ($1, $2, $3)
        ON CONFLICT (membro_id, partitura_id)
        DO UPDATE SET classificacao = EXCLUDED.classificacao, atualizado_em = now()`,
		membroID, partituraID, classificacao)
	return err
}

func (r *Repository) ListAvaliacoes(ctx context.Context) ([]Avaliacao, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `
        SELECT partitura_id, membro_id, classificacao
          FROM avaliacoes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	avaliacoes := make([]Avaliacao, 0)
	for rows.Next() {
		var a Avaliacao
		if err := rows.Scan(&a.PartituraID, &a.MembroID, &a.Classificacao); err != nil {
			return nil, err
		}
		avaliacoes = append(avaliacoes, a)
	}
	return avaliacoes, rows.Err()
}
