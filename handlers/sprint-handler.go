package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/swissmarley/agile-compass/models"
	"github.com/swissmarley/agile-compass/services"
)

type SprintHandler struct {
	service *services.SprintService
}

func NewSprintHandler(service *services.SprintService) *SprintHandler {
	return &SprintHandler{service: service}
}

func (h *SprintHandler) CreateSprint(w http.ResponseWriter, r *http.Request) {
	actor, ok := actingUser(w, r)
	if !ok {
		return
	}
	var in services.SprintInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sprint, err := h.service.CreateSprint(r.Context(), actor, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sprint)
}

func (h *SprintHandler) UpdateSprint(w http.ResponseWriter, r *http.Request) {
	actor, ok := actingUser(w, r)
	if !ok {
		return
	}
	var sprint models.Sprint
	if err := json.NewDecoder(r.Body).Decode(&sprint); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sprint.ID = mux.Vars(r)["sprintID"]

	updated, err := h.service.UpdateSprint(r.Context(), actor, sprint, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *SprintHandler) GetSprintsByProject(w http.ResponseWriter, r *http.Request) {
	sprints, err := h.service.GetByProject(r.Context(), mux.Vars(r)["projectID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sprints)
}

func (h *SprintHandler) GetActiveSprint(w http.ResponseWriter, r *http.Request) {
	sprint, err := h.service.ActiveSprint(r.Context(), mux.Vars(r)["projectID"])
	if err != nil {
		writeError(w, err)
		return
	}
	if sprint == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, sprint)
}
