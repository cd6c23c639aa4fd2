package agenda

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	errNotFound = errors.New("not found")
)

const dbTimeout = 3 * time.Second

// Repository fornece acesso aos dados do calendário.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

type Evento struct {
	ID       uuid.UUID `json:"id"`
	Titulo   string    `json:"titulo"`
	Data     time.Time `json:"data"`
	CriadoEm time.Time `json:"criado_em"`
}

// PresencaDetalhe agrega a resposta de um membro com o respetivo nome,
// obtido por join (não há nome denormalizado na tabela de presenças).
type PresencaDetalhe struct {
	MembroID     uuid.UUID `json:"membro_id"`
	Nome         string    `json:"nome"`
	Resposta     string    `json:"resposta"`
	AtualizadoEm time.Time `json:"atualizado_em"`
}

func (r *Repository) ListEventos(ctx context.Context) ([]Evento, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT id, titulo, data, criado_em
		FROM eventos
		ORDER BY data
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEventos(rows)
}

// ListEventosFuturos devolve eventos estritamente após a data de referência.
func (r *Repository) ListEventosFuturos(ctx context.Context, ref time.Time) ([]Evento, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT id, titulo, data, criado_em
		FROM eventos
		WHERE data > $1
		ORDER BY data
	`, ref)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEventos(rows)
}

// ListEventosPassados devolve eventos até à data de referência, inclusive,
// do mais recente para o mais antigo.
func (r *Repository) ListEventosPassados(ctx context.Context, ref time.Time) ([]Evento, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT id, titulo, data, criado_em
		FROM eventos
		WHERE data <= $1
		ORDER BY data DESC
	`, ref)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEventos(rows)
}

func (r *Repository) GetEvento(ctx context.Context, id uuid.UUID) (Evento, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var ev Evento
	err := r.db.QueryRow(ctx, `
		SELECT id, titulo, data, criado_em
		FROM eventos
		WHERE id = $1
	`, id).Scan(&ev.ID, &ev.Titulo, &ev.Data, &ev.CriadoEm)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Evento{}, errNotFound
		}
		return Evento{}, err
	}
	return ev, nil
}

func (r *Repository) CreateEvento(ctx context.Context, titulo string, data time.Time) (Evento, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var ev Evento
	err := r.db.QueryRow(ctx, `
		INSERT INTO eventos (id, titulo, data)
		VALUES ($1, $2, $3)
		RETURNING id, titulo, data, criado_em
	`, uuid.New(), titulo, data).Scan(&ev.ID, &ev.Titulo, &ev.Data, &ev.CriadoEm)
	if err != nil {
		return Evento{}, err
	}
	return ev, nil
}

func (r *Repository) UpdateEvento(ctx context.Context, id uuid.UUID, titulo string, data time.Time) (Evento, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var ev Evento
	err := r.db.QueryRow(ctx, `
		UPDATE eventos
		SET titulo = $2, data = $3
		WHERE id = $1
		RETURNING id, titulo, data, criado_em
	`, id, titulo, data).Scan(&ev.ID, &ev.Titulo, &ev.Data, &ev.CriadoEm)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Evento{}, errNotFound
		}
		return Evento{}, err
	}
	return ev, nil
}

func (r *Repository) DeleteEvento(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := r.db.Exec(ctx, `DELETE FROM eventos WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return errNotFound
	}
	return nil
}

// UpsertPresenca grava a resposta de um membro a um evento de forma atómica;
// exatamente uma linha por (membro, evento), último write vence.
func (r *Repository) UpsertPresenca(ctx context.Context, membroID, eventoID uuid.UUID, resposta string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := r.db.Exec(ctx, `
		INSERT INTO presencas (membro_id, evento_id, resposta, atualizado_em)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (membro_id, evento_id)
		DO UPDATE SET resposta = EXCLUDED.resposta, atualizado_em = now()
	`, membroID, eventoID, resposta)
	return err
}

// ListRespostasDoMembro devolve o mapa evento→resposta de um membro.
func (r *Repository) ListRespostasDoMembro(ctx context.Context, membroID uuid.UUID) (map[uuid.UUID]string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT evento_id, resposta
		FROM presencas
		WHERE membro_id = $1
	`, membroID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	respostas := make(map[uuid.UUID]string)
	for rows.Next() {
		var (
			eventoID uuid.UUID
			resposta string
		)
		if err := rows.Scan(&eventoID, &resposta); err != nil {
			return nil, err
		}
		respostas[eventoID] = resposta
	}

	return respostas, rows.Err()
}

// ListPresencasDoEvento devolve todas as respostas a um evento com nomes.
func (r *Repository) ListPresencasDoEvento(ctx context.Context, eventoID uuid.UUID) ([]PresencaDetalhe, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT p.membro_id, m.nome, p.resposta, p.atualizado_em
		FROM presencas p
		JOIN membros m ON m.id = p.membro_id
		WHERE p.evento_id = $1
		ORDER BY m.nome
	`, eventoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var presencas []PresencaDetalhe
	for rows.Next() {
		var p PresencaDetalhe
		if err := rows.Scan(&p.MembroID, &p.Nome, &p.Resposta, &p.AtualizadoEm); err != nil {
			return nil, err
		}
		presencas = append(presencas, p)
	}

	return presencas, rows.Err()
}

func scanEventos(rows pgx.Rows) ([]Evento, error) {
	var eventos []Evento
	for rows.Next() {
		var ev Evento
		if err := rows.Scan(&ev.ID, &ev.Titulo, &ev.Data, &ev.CriadoEm); err != nil {
			return nil, err
		}
		eventos = append(eventos, ev)
	}
	return eventos, rows.Err()
}
