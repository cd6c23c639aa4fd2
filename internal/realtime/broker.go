package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Canal Redis usado para propagar alterações de eventos entre réplicas.
const canalEventos = "eventos:changes"

// Tipos de alteração publicados no canal.
const (
	MudancaCriado     = "criado"
	MudancaAtualizado = "atualizado"
	MudancaRemovido   = "removido"
)

// Mudanca descreve uma alteração no calendário para os subscritores.
type Mudanca struct {
	Tipo     string `json:"tipo"`
	EventoID string `json:"evento_id"`
	Titulo   string `json:"titulo,omitempty"`
	Data     string `json:"data,omitempty"`
}

// Broker liga o pub/sub do Redis aos subscritores SSE locais. Cada réplica
// da API corre o seu broker; publicar via Redis garante que todas recebem.
type Broker struct {
	redis  *redis.Client
	logger zerolog.Logger

	mu   sync.RWMutex
	subs map[chan Mudanca]struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// NewBroker cria broker parado; chamar Start antes de usar Subscribe.
func NewBroker(redisClient *redis.Client, logger zerolog.Logger) *Broker {
	return &Broker{
		redis:  redisClient,
		logger: logger,
		subs:   make(map[chan Mudanca]struct{}),
	}
}

// Start arranca a goroutine de escuta do canal Redis.
func (b *Broker) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})

	go b.run(runCtx)
}

// Stop encerra a escuta e fecha todos os subscritores.
func (b *Broker) Stop() {
	if b.cancel != nil {
		b.cancel()
		<-b.done
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		close(ch)
		delete(b.subs, ch)
	}
}

func (b *Broker) run(ctx context.Context) {
	defer close(b.done)

	for {
		pubsub := b.redis.Subscribe(ctx, canalEventos)
		ch := pubsub.Channel()

	receive:
		for {
			select {
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break receive
				}
				var mudanca Mudanca
				if err := json.Unmarshal([]byte(msg.Payload), &mudanca); err != nil {
					b.logger.Warn().Err(err).Msg("payload de mudança inválido")
					continue
				}
				b.fanout(mudanca)
			}
		}

		_ = pubsub.Close()
		b.logger.Warn().Msg("subscrição redis perdida, a religar")

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (b *Broker) fanout(m Mudanca) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- m:
		default:
			// subscritor lento; a notificação é best-effort e o cliente
			// refaz o fetch completo ao receber qualquer mudança
		}
	}
}

// Publish difunde a alteração via Redis para todas as réplicas.
func (b *Broker) Publish(ctx context.Context, m Mudanca) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return b.redis.Publish(ctx, canalEventos, payload).Err()
}

// Subscribe regista um subscritor local e devolve função de cancelamento.
func (b *Broker) Subscribe() (<-chan Mudanca, func()) {
	ch := make(chan Mudanca, 8)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}

	return ch, cancel
}
