package api

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/fuomag9/checkpulse/internal/models"
	"github.com/fuomag9/checkpulse/internal/monitor"
	"github.com/fuomag9/checkpulse/internal/store"
)

const checkIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// TargetChecker refuses check targets that must not be probed
type TargetChecker = monitor.TargetChecker

// CheckProcessor runs a single check on demand
type CheckProcessor interface {
	ProcessCheck(ctx context.Context, id string) (*monitor.Result, error)
}

// CheckItem is one entry of the checks listing. Records that fail validation
// are still listed with the reason.
type CheckItem struct {
	ID      string        `json:"id"`
	Check   *models.Check `json:"check,omitempty"`
	Invalid string        `json:"invalid,omitempty"`
}

// CreateCheckRequest is the user supplied part of a check. Engine fields are
// rejected as unknown.
type CreateCheckRequest struct {
	UserPhone      string `json:"userPhone"`
	Protocol       string `json:"protocol"`
	URL            string `json:"url"`
	Method         string `json:"method"`
	SuccessCodes   []int  `json:"successCodes"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

// HandleGetChecks returns every stored check
func HandleGetChecks(records store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := records.List(r.Context(), models.CollectionChecks)
		if err != nil {
			log.Errorf("Failed to list checks: %v", err)
			http.Error(w, "Failed to fetch checks", http.StatusInternalServerError)
			return
		}

		items := make([]CheckItem, 0, len(ids))
		for _, id := range ids {
			item := CheckItem{ID: id}
			raw, err := records.Read(r.Context(), models.CollectionChecks, id)
			if err != nil {
				// deleted between List and Read
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				item.Invalid = "unreadable"
			} else if check, err := monitor.ValidateCheck(raw); err != nil {
				item.Invalid = err.Error()
			} else {
				item.Check = check
			}
			items = append(items, item)
		}

		writeJSON(w, http.StatusOK, items)
	}
}

// HandleGetCheck returns a single check
func HandleGetCheck(records store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		check, status, msg := loadCheck(r.Context(), records, chi.URLParam(r, "id"))
		if check == nil {
			http.Error(w, msg, status)
			return
		}
		writeJSON(w, http.StatusOK, check)
	}
}

// HandleCreateCheck registers a new check for an existing user
func HandleCreateCheck(records store.Store, guard TargetChecker, maxPerUser int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		var req CreateCheckRequest
		if err := dec.Decode(&req); err != nil {
			http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}

		id, err := newCheckID()
		if err != nil {
			http.Error(w, "Failed to generate check id", http.StatusInternalServerError)
			return
		}

		raw, err := json.Marshal(models.Check{
			ID:             id,
			UserPhone:      req.UserPhone,
			Protocol:       req.Protocol,
			URL:            req.URL,
			Method:         req.Method,
			SuccessCodes:   req.SuccessCodes,
			TimeoutSeconds: req.TimeoutSeconds,
		})
		if err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		check, err := monitor.ValidateCheck(raw)
		if err != nil {
			http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
			return
		}

		if guard != nil {
			if err := guard.Check(ctx, check); err != nil {
				http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
				return
			}
		}

		user, err := loadUser(ctx, records, check.UserPhone)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "User not found", http.StatusNotFound)
				return
			}
			log.Errorf("Failed to read user %s: %v", check.UserPhone, err)
			http.Error(w, "Failed to create check", http.StatusInternalServerError)
			return
		}
		if len(user.Checks) >= maxPerUser {
			http.Error(w, "Maximum number of checks reached", http.StatusBadRequest)
			return
		}

		data, err := monitor.NormalizeCheck(check)
		if err != nil {
			http.Error(w, "Failed to create check", http.StatusInternalServerError)
			return
		}
		if err := records.Create(ctx, models.CollectionChecks, check.ID, data); err != nil {
			log.Errorf("Failed to store check %s: %v", check.ID, err)
			http.Error(w, "Failed to create check", http.StatusInternalServerError)
			return
		}

		err = updateUserChecks(ctx, records, check.UserPhone, func(ids []string) []string {
			return append(ids, check.ID)
		})
		if err != nil {
			log.Errorf("Check %s created but user %s was not updated: %v", check.ID, check.UserPhone, err)
		}

		log.WithFields(log.Fields{"check": check.ID, "user": check.UserPhone}).Info("Check created")
		writeJSON(w, http.StatusCreated, check)
	}
}

// HandleDeleteCheck removes a check and detaches it from its owner
func HandleDeleteCheck(records store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "id")

		raw, err := records.Read(ctx, models.CollectionChecks, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "Check not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to delete check", http.StatusInternalServerError)
			return
		}

		if err := records.Delete(ctx, models.CollectionChecks, id); err != nil {
			log.Errorf("Failed to delete check %s: %v", id, err)
			http.Error(w, "Failed to delete check", http.StatusInternalServerError)
			return
		}

		// Owner cleanup is best effort, the record may be hand edited
		var owner struct {
			UserPhone string `json:"userPhone"`
		}
		if json.Unmarshal(raw, &owner) == nil && owner.UserPhone != "" {
			err := updateUserChecks(ctx, records, owner.UserPhone, func(ids []string) []string {
				return removeString(ids, id)
			})
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				log.Warnf("Failed to detach check %s from user %s: %v", id, owner.UserPhone, err)
			}
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleProbeCheck probes one check immediately, outside the regular cycle
func HandleProbeCheck(processor CheckProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := processor.ProcessCheck(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				http.Error(w, "Check not found", http.StatusNotFound)
			case errors.Is(err, monitor.ErrInvalidCheck):
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			default:
				log.Errorf("On-demand probe failed: %v", err)
				http.Error(w, "Probe failed", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"check":   result.Check,
			"outcome": result.Outcome,
			"state":   result.Decision.State,
			"alerted": result.Alerted,
		})
	}
}

func loadCheck(ctx context.Context, records store.Store, id string) (*models.Check, int, string) {
	raw, err := records.Read(ctx, models.CollectionChecks, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, http.StatusNotFound, "Check not found"
		}
		log.Errorf("Failed to read check %s: %v", id, err)
		return nil, http.StatusInternalServerError, "Failed to fetch check"
	}

	check, err := monitor.ValidateCheck(raw)
	if err != nil {
		return nil, http.StatusUnprocessableEntity, err.Error()
	}
	return check, http.StatusOK, ""
}

func loadUser(ctx context.Context, records store.Store, phone string) (*models.User, error) {
	raw, err := records.Read(ctx, models.CollectionUsers, phone)
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, err
	}
	if user.Phone == "" {
		user.Phone = phone
	}
	return &user, nil
}

// updateUserChecks rewrites only the checks list of a user record, keeping
// every other field as stored
func updateUserChecks(ctx context.Context, records store.Store, phone string, update func([]string) []string) error {
	raw, err := records.Read(ctx, models.CollectionUsers, phone)
	if err != nil {
		return err
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	var ids []string
	if existing, ok := doc["checks"]; ok {
		if err := json.Unmarshal(existing, &ids); err != nil {
			return err
		}
	}

	encoded, err := json.Marshal(update(ids))
	if err != nil {
		return err
	}
	doc["checks"] = encoded

	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return records.Update(ctx, models.CollectionUsers, phone, data)
}

func newCheckID() (string, error) {
	max := big.NewInt(int64(len(checkIDAlphabet)))
	id := make([]byte, models.CheckIDLength)
	for i := range id {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		id[i] = checkIDAlphabet[n.Int64()]
	}
	return string(id), nil
}

func removeString(values []string, v string) []string {
	out := values[:0]
	for _, value := range values {
		if value != v {
			out = append(out, value)
		}
	}
	return out
}
