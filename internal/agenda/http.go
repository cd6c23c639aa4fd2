package agenda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	httpmiddleware "github.com/bandafrc/api/internal/http/middleware"
	"github.com/bandafrc/api/internal/util"
)

// Handler orquestra as rotas do calendário.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/eventos", func(r chi.Router) {
		r.Get("/", h.handleListEventos)
		r.Get("/proximos", h.handleEventosFuturos)
		r.Get("/stream", h.handleStream)
		r.Get("/{id}/presencas", h.handleListPresencas)
		r.Put("/{id}/presenca", h.handleResponderPresenca)

		r.Group(func(admin chi.Router) {
			admin.Use(httpmiddleware.RequireAdmin)
			admin.Post("/", h.handleCriarEvento)
			admin.Put("/{id}", h.handleAtualizarEvento)
			admin.Delete("/{id}", h.handleRemoverEvento)
		})
	})

	r.Route("/membros/{id}/presencas", func(r chi.Router) {
		r.Get("/", h.handleResumoPresencas)

		r.Group(func(admin chi.Router) {
			admin.Use(httpmiddleware.RequireAdmin)
			admin.Put("/{eventoID}", h.handleRegistarPresenca)
		})
	})
}

type eventoDTO struct {
	ID       uuid.UUID `json:"id"`
	Titulo   string    `json:"titulo"`
	Data     string    `json:"data"`
	Resposta *string   `json:"resposta,omitempty"`
}

func toDTO(ev Evento, respostas map[uuid.UUID]string) eventoDTO {
	dto := eventoDTO{ID: ev.ID, Titulo: ev.Titulo, Data: ev.Data.Format(util.DateLayout)}
	if respostas != nil {
		if resposta, ok := respostas[ev.ID]; ok {
			dto.Resposta = &resposta
		}
	}
	return dto
}

func toDTOs(eventos []Evento, respostas map[uuid.UUID]string) []eventoDTO {
	dtos := make([]eventoDTO, 0, len(eventos))
	for _, ev := range eventos {
		dtos = append(dtos, toDTO(ev, respostas))
	}
	return dtos
}

func (h *Handler) handleListEventos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	membroID, err := subjectAsUUID(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	eventos, respostas, err := h.service.ListEventos(ctx, membroID)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"eventos": toDTOs(eventos, respostas)})
}

func (h *Handler) handleEventosFuturos(w http.ResponseWriter, r *http.Request) {
	eventos, err := h.service.EventosFuturos(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"eventos": toDTOs(eventos, nil)})
}

type eventoPayload struct {
	Titulo string `json:"titulo"`
	Data   string `json:"data"`
}

func decodeEventoPayload(r *http.Request) (string, time.Time, error) {
	var payload eventoPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return "", time.Time{}, errors.New("JSON inválido")
	}
	data, err := util.ParseDate(payload.Data)
	if err != nil {
		return "", time.Time{}, err
	}
	return payload.Titulo, data, nil
}

func (h *Handler) handleCriarEvento(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	titulo, data, err := decodeEventoPayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}

	ev, err := h.service.CriarEvento(ctx, titulo, data)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	logRequest(ctx, "POST /eventos", start)
	writeJSON(w, http.StatusCreated, map[string]any{"evento": toDTO(ev, nil)})
}

func (h *Handler) handleAtualizarEvento(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	eventoID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "evento inválido", nil)
		return
	}

	titulo, data, err := decodeEventoPayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}

	ev, err := h.service.AtualizarEvento(ctx, eventoID, titulo, data)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	logRequest(ctx, "PUT /eventos", start)
	writeJSON(w, http.StatusOK, map[string]any{"evento": toDTO(ev, nil)})
}

func (h *Handler) handleRemoverEvento(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	eventoID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "evento inválido", nil)
		return
	}

	if err := h.service.RemoverEvento(ctx, eventoID); err != nil {
		handleDomainError(w, err)
		return
	}

	logRequest(ctx, "DELETE /eventos", start)
	writeJSON(w, http.StatusOK, map[string]string{"status": "removido"})
}

func (h *Handler) handleResponderPresenca(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	membroID, err := subjectAsUUID(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	eventoID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "evento inválido", nil)
		return
	}

	var payload struct {
		Resposta string `json:"resposta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	if err := h.service.ResponderPresenca(ctx, membroID, eventoID, payload.Resposta); err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"resposta": payload.Resposta})
}

func (h *Handler) handleRegistarPresenca(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	membroID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "membro inválido", nil)
		return
	}

	eventoID, err := uuid.Parse(chi.URLParam(r, "eventoID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "evento inválido", nil)
		return
	}

	var payload struct {
		Resposta string `json:"resposta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	if err := h.service.RegistarPresenca(ctx, membroID, eventoID, payload.Resposta); err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"resposta": payload.Resposta})
}

func (h *Handler) handleListPresencas(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	eventoID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "evento inválido", nil)
		return
	}

	presencas, err := h.service.PresencasDoEvento(ctx, eventoID)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"presencas": presencas})
}

func (h *Handler) handleResumoPresencas(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	membroID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "membro inválido", nil)
		return
	}

	eventos, respostas, comparecimentos, err := h.service.ResumoPresencas(ctx, membroID)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"eventos":         toDTOs(eventos, respostas),
		"comparecimentos": comparecimentos,
	})
}

// handleStream mantém uma ligação SSE com notificações de alterações no
// calendário; o cliente refaz o fetch completo ao receber qualquer evento.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "streaming não suportado", nil)
		return
	}

	mudancas, cancel := h.service.Mudancas()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case mudanca, ok := <-mudancas:
			if !ok {
				return
			}
			payload, err := json.Marshal(mudanca)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: mudanca\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func subjectAsUUID(ctx context.Context) (uuid.UUID, error) {
	sub := httpmiddleware.GetSubject(ctx)
	return uuid.Parse(sub)
}

func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRespostaInvalida), errors.Is(err, ErrTituloObrigatorio):
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	case errors.Is(err, ErrEventoPassado):
		writeError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, errNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "registro não encontrado", nil)
	default:
		writeInternalError(w, err)
	}
}

func writeInternalError(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("agenda handler error")
	writeError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
}

func logRequest(ctx context.Context, label string, start time.Time) {
	reqID := chimiddleware.GetReqID(ctx)
	log.Info().Str("request_id", reqID).Str("label", label).Dur("duration", time.Since(start)).Msg("agenda_request")
}

// Helpers de resposta JSON compatíveis com o resto do projeto.
type successEnvelope struct {
	Data  any `json:"data"`
	Error any `json:"error"`
}

type errorEnvelope struct {
	Data  any            `json:"data"`
	Error *errorResponse `json:"error"`
}

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(successEnvelope{Data: payload, Error: nil})
}

func writeError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Data: nil, Error: &errorResponse{Code: code, Message: message, Details: details}})
}
