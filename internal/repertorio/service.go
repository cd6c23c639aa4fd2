package repertorio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bandafrc/api/internal/storage"
	"github.com/bandafrc/api/internal/util"
)

var (
	ErrClassificacaoInvalida = errors.New("classificação deve estar entre 1 e 5")
	ErrFicheiroObrigatorio   = errors.New("ficheiro PDF obrigatório")
	ErrTituloObrigatorio     = errors.New("título obrigatório")
)

const signedURLTTL = 5 * time.Minute

// Biblioteca isola o acesso a partituras e avaliações.
type Biblioteca interface {
	ListPartituras(context.Context) ([]Partitura, error)
	GetPartitura(context.Context, uuid.UUID) (Partitura, error)
	CreatePartitura(context.Context, CreatePartituraParams) (Partitura, error)
	UpdatePartitura(context.Context, UpdatePartituraParams) (Partitura, error)
	DeletePartitura(context.Context, uuid.UUID) error
	UpsertAvaliacao(ctx context.Context, membroID, partituraID uuid.UUID, classificacao int) error
	ListAvaliacoes(context.Context) ([]Avaliacao, error)
}

// Service contém as regras do repertório.
type Service struct {
	repo  Biblioteca
	blobs storage.Blobs
}

func NewService(repo Biblioteca, blobs storage.Blobs) *Service {
	return &Service{repo: repo, blobs: blobs}
}

// PartituraComMedia junta a partitura à média geral e à classificação do
// próprio chamador. Média nula significa partitura ainda sem avaliações.
type PartituraComMedia struct {
	Partitura
	Media              *float64 `json:"media"`
	MinhaClassificacao *int     `json:"minha_classificacao"`
	TotalAvaliacoes    int      `json:"total_avaliacoes"`
}

// Listar devolve o repertório completo com as médias agregadas.
func (s *Service) Listar(ctx context.Context, membroID uuid.UUID) ([]PartituraComMedia, error) {
	partituras, err := s.repo.ListPartituras(ctx)
	if err != nil {
		return nil, err
	}

	avaliacoes, err := s.repo.ListAvaliacoes(ctx)
	if err != nil {
		return nil, err
	}

	medias := MediaPorPartitura(avaliacoes)
	totais := make(map[uuid.UUID]int, len(medias))
	minhas := make(map[uuid.UUID]int)
	for _, a := range avaliacoes {
		totais[a.PartituraID]++
		if a.MembroID == membroID {
			minhas[a.PartituraID] = a.Classificacao
		}
	}

	out := make([]PartituraComMedia, 0, len(partituras))
	for _, p := range partituras {
		item := PartituraComMedia{Partitura: p, TotalAvaliacoes: totais[p.ID]}
		if media, ok := medias[p.ID]; ok {
			m := media
			item.Media = &m
		}
		if minha, ok := minhas[p.ID]; ok {
			c := minha
			item.MinhaClassificacao = &c
		}
		out = append(out, item)
	}
	return out, nil
}

// MediaPorPartitura agrega classificações por partitura. Partituras sem
// avaliações não aparecem no mapa; a média fica sempre entre 1 e 5.
func MediaPorPartitura(avaliacoes []Avaliacao) map[uuid.UUID]float64 {
	somas := make(map[uuid.UUID]int)
	contagens := make(map[uuid.UUID]int)
	for _, a := range avaliacoes {
		somas[a.PartituraID] += a.Classificacao
		contagens[a.PartituraID]++
	}

	medias := make(map[uuid.UUID]float64, len(somas))
	for id, soma := range somas {
		medias[id] = float64(soma) / float64(contagens[id])
	}
	return medias
}

type CriarInput struct {
	Titulo      string
	Autor       *string
	Link        *string
	Ficheiro    []byte
	ContentType string
	MembroID    uuid.UUID
}

// Criar envia o PDF para o bucket e regista a partitura. Se a inserção
// falhar o objeto acabado de enviar é removido.
func (s *Service) Criar(ctx context.Context, input CriarInput) (Partitura, error) {
	if err := util.RequireString(input.Titulo, "título"); err != nil {
		return Partitura{}, ErrTituloObrigatorio
	}
	if len(input.Ficheiro) == 0 {
		return Partitura{}, ErrFicheiroObrigatorio
	}

	key := fmt.Sprintf("pdfs/%s.pdf", util.NewID())
	if _, err := s.blobs.Upload(ctx, storage.UploadInput{
		Key:         key,
		Body:        input.Ficheiro,
		ContentType: input.ContentType,
	}); err != nil {
		return Partitura{}, fmt.Errorf("upload partitura: %w", err)
	}

	p, err := s.repo.CreatePartitura(ctx, CreatePartituraParams{
		Titulo:     input.Titulo,
		Autor:      input.Autor,
		Link:       input.Link,
		ArquivoKey: key,
		MembroID:   input.MembroID,
	})
	if err != nil {
		if rmErr := s.blobs.Remove(ctx, key); rmErr != nil {
			log.Warn().Err(rmErr).Str("key", key).Msg("falha ao remover objeto órfão")
		}
		return Partitura{}, err
	}
	return p, nil
}

type AtualizarInput struct {
	ID          uuid.UUID
	Titulo      string
	Autor       *string
	Link        *string
	Ficheiro    []byte
	ContentType string
}

// Atualizar edita os metadados e, quando enviado, substitui o PDF. O objeto
// antigo só é removido depois de a linha apontar para o novo.
func (s *Service) Atualizar(ctx context.Context, input AtualizarInput) (Partitura, error) {
	if err := util.RequireString(input.Titulo, "título"); err != nil {
		return Partitura{}, ErrTituloObrigatorio
	}

	atual, err := s.repo.GetPartitura(ctx, input.ID)
	if err != nil {
		return Partitura{}, err
	}

	key := atual.ArquivoKey
	if len(input.Ficheiro) > 0 {
		key = fmt.Sprintf("pdfs/%s.pdf", util.NewID())
		if _, err := s.blobs.Upload(ctx, storage.UploadInput{
			Key:         key,
			Body:        input.Ficheiro,
			ContentType: input.ContentType,
		}); err != nil {
			return Partitura{}, fmt.Errorf("upload partitura: %w", err)
		}
	}

	p, err := s.repo.UpdatePartitura(ctx, UpdatePartituraParams{
		ID:         input.ID,
		Titulo:     input.Titulo,
		Autor:      input.Autor,
		Link:       input.Link,
		ArquivoKey: key,
	})
	if err != nil {
		if key != atual.ArquivoKey {
			if rmErr := s.blobs.Remove(ctx, key); rmErr != nil {
				log.Warn().Err(rmErr).Str("key", key).Msg("falha ao remover objeto órfão")
			}
		}
		return Partitura{}, err
	}

	if key != atual.ArquivoKey {
		if rmErr := s.blobs.Remove(ctx, atual.ArquivoKey); rmErr != nil {
			log.Warn().Err(rmErr).Str("key", atual.ArquivoKey).Msg("falha ao remover objeto antigo")
		}
	}
	return p, nil
}

// Remover apaga a partitura (as avaliações caem em cascata) e tenta remover
// o PDF do bucket. Falha na remoção do objeto fica apenas no log.
func (s *Service) Remover(ctx context.Context, id uuid.UUID) error {
	p, err := s.repo.GetPartitura(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeletePartitura(ctx, id); err != nil {
		return err
	}

	if rmErr := s.blobs.Remove(ctx, p.ArquivoKey); rmErr != nil {
		log.Warn().Err(rmErr).Str("key", p.ArquivoKey).Msg("falha ao remover PDF do bucket")
	}
	return nil
}

// SignedURL gera uma URL de leitura temporária para o PDF.
func (s *Service) SignedURL(ctx context.Context, id uuid.UUID) (string, error) {
	p, err := s.repo.GetPartitura(ctx, id)
	if err != nil {
		return "", err
	}
	return s.blobs.PresignGet(p.ArquivoKey, signedURLTTL)
}

// Avaliar grava ou substitui a classificação do membro para a partitura.
func (s *Service) Avaliar(ctx context.Context, membroID, partituraID uuid.UUID, classificacao int) error {
	if classificacao < 1 || classificacao > 5 {
		return ErrClassificacaoInvalida
	}

	if _, err := s.repo.GetPartitura(ctx, partituraID); err != nil {
		return err
	}

	return s.repo.UpsertAvaliacao(ctx, membroID, partituraID, classificacao)
}
