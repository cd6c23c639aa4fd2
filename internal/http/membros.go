package http

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// HandleListMembros devolve o diretório de membros ativos ordenado por nome.
func (h *PerfilHandler) HandleListMembros(w http.ResponseWriter, r *http.Request) {
	membros, err := h.store.ListMembros(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("membros error")
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
		return
	}

	dtos := make([]membroDTO, 0, len(membros))
	for _, m := range membros {
		dtos = append(dtos, toMembroDTO(m))
	}

	WriteJSON(w, http.StatusOK, map[string]any{"membros": dtos})
}
