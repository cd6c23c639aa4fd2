package agenda

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bandafrc/api/internal/realtime"
	"github.com/bandafrc/api/internal/util"
)

// Respostas de presença aceites.
const (
	RespostaSim = "sim"
	RespostaNao = "nao"
)

var (
	ErrRespostaInvalida  = errors.New("resposta deve ser 'sim' ou 'nao'")
	ErrEventoPassado     = errors.New("evento já decorreu")
	ErrTituloObrigatorio = errors.New("título obrigatório")
)

const (
	cacheKeyProximos = "agenda:proximos"
	cacheTTLProximos = 60 * time.Second
)

// CalendarRepository isola o acesso a eventos e presenças.
type CalendarRepository interface {
	ListEventos(context.Context) ([]Evento, error)
	ListEventosFuturos(context.Context, time.Time) ([]Evento, error)
	ListEventosPassados(context.Context, time.Time) ([]Evento, error)
	GetEvento(context.Context, uuid.UUID) (Evento, error)
	CreateEvento(context.Context, string, time.Time) (Evento, error)
	UpdateEvento(context.Context, uuid.UUID, string, time.Time) (Evento, error)
	DeleteEvento(context.Context, uuid.UUID) error
	UpsertPresenca(ctx context.Context, membroID, eventoID uuid.UUID, resposta string) error
	ListRespostasDoMembro(context.Context, uuid.UUID) (map[uuid.UUID]string, error)
	ListPresencasDoEvento(context.Context, uuid.UUID) ([]PresencaDetalhe, error)
}

// Notificador difunde alterações do calendário para os clientes ligados.
type Notificador interface {
	Publish(ctx context.Context, m realtime.Mudanca) error
	Subscribe() (<-chan realtime.Mudanca, func())
}

// Service contém as regras do calendário e das presenças.
type Service struct {
	repo     CalendarRepository
	cache    ListaCache
	notifier Notificador
}

func NewService(repo CalendarRepository, cache ListaCache, notifier Notificador) *Service {
	return &Service{repo: repo, cache: cache, notifier: notifier}
}

// ListEventos devolve todos os eventos e o mapa de respostas do chamador.
func (s *Service) ListEventos(ctx context.Context, membroID uuid.UUID) ([]Evento, map[uuid.UUID]string, error) {
	eventos, err := s.repo.ListEventos(ctx)
	if err != nil {
		return nil, nil, err
	}

	respostas, err := s.repo.ListRespostasDoMembro(ctx, membroID)
	if err != nil {
		return nil, nil, err
	}

	return eventos, respostas, nil
}

// EventosFuturos lista eventos estritamente futuros, com cache curto.
func (s *Service) EventosFuturos(ctx context.Context) ([]Evento, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKeyProximos); err == nil {
			var eventos []Evento
			if json.Unmarshal(data, &eventos) == nil {
				return eventos, nil
			}
		}
	}

	eventos, err := s.repo.ListEventosFuturos(ctx, util.Hoje())
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(eventos); err == nil {
			_ = s.cache.Set(ctx, cacheKeyProximos, payload, cacheTTLProximos)
		}
	}

	return eventos, nil
}

// CriarEvento insere evento novo e notifica subscritores.
func (s *Service) CriarEvento(ctx context.Context, titulo string, data time.Time) (Evento, error) {
	if err := util.RequireString(titulo, "título"); err != nil {
		return Evento{}, ErrTituloObrigatorio
	}

	ev, err := s.repo.CreateEvento(ctx, titulo, util.TruncateDate(data))
	if err != nil {
		return Evento{}, err
	}

	s.invalidateCache(ctx)
	s.notify(ctx, realtime.MudancaCriado, ev)
	return ev, nil
}

// AtualizarEvento altera título e data de um evento existente.
func (s *Service) AtualizarEvento(ctx context.Context, id uuid.UUID, titulo string, data time.Time) (Evento, error) {
	if err := util.RequireString(titulo, "título"); err != nil {
		return Evento{}, ErrTituloObrigatorio
	}

	ev, err := s.repo.UpdateEvento(ctx, id, titulo, util.TruncateDate(data))
	if err != nil {
		return Evento{}, err
	}

	s.invalidateCache(ctx)
	s.notify(ctx, realtime.MudancaAtualizado, ev)
	return ev, nil
}

// RemoverEvento apaga o evento; as presenças caem em cascata.
func (s *Service) RemoverEvento(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteEvento(ctx, id); err != nil {
		return err
	}

	s.invalidateCache(ctx)
	s.notify(ctx, realtime.MudancaRemovido, Evento{ID: id})
	return nil
}

// ResponderPresenca grava a resposta do próprio membro. Eventos já
// decorridos não aceitam resposta nova.
func (s *Service) ResponderPresenca(ctx context.Context, membroID, eventoID uuid.UUID, resposta string) error {
	if resposta != RespostaSim && resposta != RespostaNao {
		return ErrRespostaInvalida
	}

	ev, err := s.repo.GetEvento(ctx, eventoID)
	if err != nil {
		return err
	}

	if ev.Data.Before(util.Hoje()) {
		return ErrEventoPassado
	}

	return s.repo.UpsertPresenca(ctx, membroID, eventoID, resposta)
}

// RegistarPresenca grava resposta em nome de outro membro (fluxo de
// administração); aceita também eventos passados, para acertos.
func (s *Service) RegistarPresenca(ctx context.Context, membroID, eventoID uuid.UUID, resposta string) error {
	if resposta != RespostaSim && resposta != RespostaNao {
		return ErrRespostaInvalida
	}

	if _, err := s.repo.GetEvento(ctx, eventoID); err != nil {
		return err
	}

	return s.repo.UpsertPresenca(ctx, membroID, eventoID, resposta)
}

// PresencasDoEvento lista as respostas registadas com os nomes dos membros.
func (s *Service) PresencasDoEvento(ctx context.Context, eventoID uuid.UUID) ([]PresencaDetalhe, error) {
	if _, err := s.repo.GetEvento(ctx, eventoID); err != nil {
		return nil, err
	}
	return s.repo.ListPresencasDoEvento(ctx, eventoID)
}

// ResumoPresencas devolve os eventos passados, as respostas do membro e o
// total de comparecimentos confirmados.
func (s *Service) ResumoPresencas(ctx context.Context, membroID uuid.UUID) ([]Evento, map[uuid.UUID]string, int, error) {
	hoje := util.Hoje()

	eventos, err := s.repo.ListEventosPassados(ctx, hoje)
	if err != nil {
		return nil, nil, 0, err
	}

	respostas, err := s.repo.ListRespostasDoMembro(ctx, membroID)
	if err != nil {
		return nil, nil, 0, err
	}

	return eventos, respostas, ContarComparecimentos(eventos, respostas, hoje), nil
}

// Mudancas expõe o canal de notificações em tempo real.
func (s *Service) Mudancas() (<-chan realtime.Mudanca, func()) {
	return s.notifier.Subscribe()
}

// ContarComparecimentos conta quantos eventos até à data de referência o
// membro respondeu "sim". Respostas ausentes contam como não comparecido;
// a ordem dos eventos é irrelevante.
func ContarComparecimentos(eventos []Evento, respostas map[uuid.UUID]string, ref time.Time) int {
	total := 0
	for _, ev := range eventos {
		if ev.Data.After(ref) {
			continue
		}
		if respostas[ev.ID] == RespostaSim {
			total++
		}
	}
	return total
}

func (s *Service) invalidateCache(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Del(ctx, cacheKeyProximos)
	}
}

func (s *Service) notify(ctx context.Context, tipo string, ev Evento) {
	if s.notifier == nil {
		return
	}
	mudanca := realtime.Mudanca{Tipo: tipo, EventoID: ev.ID.String()}
	if tipo != realtime.MudancaRemovido {
		mudanca.Titulo = ev.Titulo
		mudanca.Data = ev.Data.Format(util.DateLayout)
	}
	_ = s.notifier.Publish(ctx, mudanca)
}
