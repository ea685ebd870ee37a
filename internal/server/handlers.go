package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/models"
	"github.com/Le-dev-du-coin/ts-cargo-notify/pkg/utils"
)

// CreateNotificationRequest is the payload for queueing a notification.
type CreateNotificationRequest struct {
	UserID      string `json:"user_id"`
	Name        string `json:"name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	Channel     string `json:"channel,omitempty"`
	Category    string `json:"category,omitempty"`
	Message     string `json:"message"`
	MediaURL    string `json:"media_url,omitempty"`
	SenderRole  string `json:"sender_role,omitempty"`
	BusinessRef string `json:"business_ref,omitempty"`
}

// createNotificationHandler queues a new notification for delivery
func (s *HTTPServer) createNotificationHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	record := &models.NotificationRecord{
		Recipient: models.Recipient{
			UserID: req.UserID,
			Name:   req.Name,
			Phone:  req.Phone,
			Email:  req.Email,
		},
		Channel:     models.Channel(req.Channel),
		Category:    models.Category(req.Category),
		Message:     req.Message,
		MediaURL:    req.MediaURL,
		SenderRole:  req.SenderRole,
		BusinessRef: req.BusinessRef,
	}

	if err := s.pool.Submit(r.Context(), record); err != nil {
		s.writeAppError(w, err, "Failed to queue notification")
		return
	}

	s.writeJSON(w, http.StatusAccepted, record)
}

// getNotificationHandler returns one record by ID
func (s *HTTPServer) getNotificationHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	record, err := s.store.GetRecord(r.Context(), id)
	if err != nil {
		s.writeAppError(w, err, "Failed to retrieve notification")
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

// cancelNotificationHandler cancels a record not yet delivered
func (s *HTTPServer) cancelNotificationHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.store.CancelRecord(r.Context(), id); err != nil {
		s.writeAppError(w, err, "Failed to cancel notification")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":     id,
		"status": models.StatusCancelled,
	})
}

// listNotificationsHandler lists records with optional filters
func (s *HTTPServer) listNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	filter := parseRecordFilter(r)

	records, err := s.store.ListRecords(r.Context(), filter)
	if err != nil {
		s.writeAppError(w, err, "Failed to list notifications")
		return
	}

	total, err := s.store.CountRecords(r.Context(), filter)
	if err != nil {
		s.writeAppError(w, err, "Failed to count notifications")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": records,
		"total":         total,
		"limit":         filter.Limit,
		"offset":        filter.Offset,
	})
}

// listFailedHandler lists records in either failed state
func (s *HTTPServer) listFailedHandler(w http.ResponseWriter, r *http.Request) {
	base := parseRecordFilter(r)

	var failed []*models.NotificationRecord
	for _, status := range []models.Status{models.StatusFailedTemporary, models.StatusFailedPermanent} {
		filter := base
		st := status
		filter.Status = &st
		records, err := s.store.ListRecords(r.Context(), filter)
		if err != nil {
			s.writeAppError(w, err, "Failed to list failed notifications")
			return
		}
		failed = append(failed, records...)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": failed,
		"total":         len(failed),
	})
}

// retryBusinessRefHandler rearms all failed records under a business
// reference and triggers an immediate sweep
func (s *HTTPServer) retryBusinessRefHandler(w http.ResponseWriter, r *http.Request) {
	businessRef := mux.Vars(r)["businessRef"]

	count, err := s.store.RearmForRetry(r.Context(), businessRef)
	if err != nil {
		s.writeAppError(w, err, "Failed to rearm notifications")
		return
	}
	if count > 0 && s.scheduler != nil {
		s.scheduler.TriggerSweep()
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"business_ref": businessRef,
		"rearmed":      count,
	})
}

// listAccountsHandler lists configured provider accounts with their health
func (s *HTTPServer) listAccountsHandler(w http.ResponseWriter, r *http.Request) {
	var statuses map[string]interface{}
	if s.monitor != nil {
		statuses = make(map[string]interface{})
		for region, status := range s.monitor.Statuses() {
			statuses[region] = status
		}
	}

	accounts := make([]map[string]interface{}, 0)
	for _, region := range s.registry.Regions() {
		acct, err := s.registry.Get(region)
		if err != nil {
			continue
		}
		entry := map[string]interface{}{
			"region":     region,
			"generation": acct.Generation,
			"active":     acct.Active,
			"usable":     acct.Usable(),
		}
		if statuses != nil {
			if status, ok := statuses[region]; ok {
				entry["health"] = status
			}
		}
		accounts = append(accounts, entry)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})
}

// circuitStateHandler returns the breaker state for one region
func (s *HTTPServer) circuitStateHandler(w http.ResponseWriter, r *http.Request) {
	region := mux.Vars(r)["region"]
	s.writeJSON(w, http.StatusOK, s.breaker.State(region))
}

// healthHandler returns basic health status
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if err := s.store.Ping(); err != nil {
		status = "unhealthy"
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// detailedHealthHandler returns per-component health
func (s *HTTPServer) detailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	storageHealthy := s.store.Ping() == nil

	response := map[string]interface{}{
		"timestamp": time.Now().UTC(),
		"storage":   storageHealthy,
	}

	overall := "healthy"
	if !storageHealthy {
		overall = "unhealthy"
	}

	if s.monitor != nil {
		response["accounts"] = s.monitor.Statuses()
		if monitorOverall := s.monitor.Overall(); monitorOverall != "healthy" && overall == "healthy" {
			overall = monitorOverall
		}
	}

	circuits := make(map[string]interface{})
	for _, region := range s.registry.Regions() {
		circuits[region] = s.breaker.State(region)
	}
	response["circuits"] = circuits
	response["status"] = overall

	s.writeJSON(w, http.StatusOK, response)
}

// statsHandler returns delivery statistics
func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeAppError(w, err, "Failed to retrieve stats")
		return
	}

	if s.metricsManager != nil {
		s.metricsManager.UpdateSystemMetrics()
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"timestamp":     time.Now().UTC(),
		"notifications": stats,
	})
}

// writeAppError maps an AppError code to an HTTP status
func (s *HTTPServer) writeAppError(w http.ResponseWriter, err error, message string) {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case utils.ErrCodeNotFound:
			s.writeError(w, http.StatusNotFound, message, err)
			return
		case utils.ErrCodeValidation:
			s.writeError(w, http.StatusBadRequest, message, err)
			return
		}
	}
	s.writeError(w, http.StatusInternalServerError, message, err)
}

// parseRecordFilter reads list filters from query parameters
func parseRecordFilter(r *http.Request) models.RecordFilter {
	q := r.URL.Query()
	filter := models.RecordFilter{Limit: 50}

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}
	if v := q.Get("status"); v != "" {
		status := models.Status(v)
		filter.Status = &status
	}
	if v := q.Get("channel"); v != "" {
		channel := models.Channel(v)
		filter.Channel = &channel
	}
	if v := q.Get("category"); v != "" {
		category := models.Category(v)
		filter.Category = &category
	}
	if v := q.Get("region"); v != "" {
		region := v
		filter.Region = &region
	}
	if v := q.Get("business_ref"); v != "" {
		ref := v
		filter.BusinessRef = &ref
	}
	return filter
}
