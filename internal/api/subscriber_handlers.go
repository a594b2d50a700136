package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/scanwatch/scanwatch/internal/alerts"
	"github.com/scanwatch/scanwatch/internal/subscribers"
	"github.com/scanwatch/scanwatch/pkg/logger"
)

// GetSubscribers returns the current subscriber list
func (h *Handler) GetSubscribers(w http.ResponseWriter, r *http.Request) {
	subs := h.subscriberStore.Load()

	response := map[string]any{
		"timestamp":   time.Now().UTC(),
		"count":       len(subs),
		"subscribers": subs,
	}

	WriteJSON(w, http.StatusOK, response)
}

// UpsertSubscriber creates or replaces a subscriber record keyed by email
func (h *Handler) UpsertSubscriber(w http.ResponseWriter, r *http.Request) {
	var sub subscribers.Subscriber
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		http.Error(w, "Invalid subscriber payload", http.StatusBadRequest)
		return
	}

	sub.Email = strings.TrimSpace(sub.Email)
	if sub.Email == "" {
		http.Error(w, "Subscriber email is required", http.StatusBadRequest)
		return
	}
	if sub.AlertType != "" && sub.AlertType != string(alerts.ChannelEmail) && sub.AlertType != string(alerts.ChannelSMS) {
		http.Error(w, "alert_type must be 'email' or 'sms'", http.StatusBadRequest)
		return
	}

	saved, err := h.subscriberStore.AddOrUpdate(sub)
	if err != nil {
		h.logger.Error("Failed to save subscriber", logger.Error(err))
		http.Error(w, "Failed to save subscriber", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Subscriber saved",
		logger.String("email", saved.Email),
		logger.Int("keywords", len(saved.Keywords)),
		logger.Int("zones", len(saved.Zones)))

	WriteJSON(w, http.StatusOK, saved)
}

// DeleteSubscriber removes a subscriber by email
func (h *Handler) DeleteSubscriber(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if email == "" {
		http.Error(w, "Subscriber email is required", http.StatusBadRequest)
		return
	}

	if _, ok := h.subscriberStore.Find(email); !ok {
		http.Error(w, "Subscriber not found", http.StatusNotFound)
		return
	}

	if err := h.subscriberStore.Remove(email); err != nil {
		h.logger.Error("Failed to remove subscriber", logger.Error(err))
		http.Error(w, "Failed to remove subscriber", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Subscriber removed", logger.String("email", email))
	WriteJSON(w, http.StatusOK, map[string]any{"deleted": email})
}
