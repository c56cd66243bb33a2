// internal/api/applications.go
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"pmc-registration/internal/application"
	apperrors "pmc-registration/internal/common/errors"
	"pmc-registration/internal/draft"
	"pmc-registration/internal/search"
	"pmc-registration/internal/workflow"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) createApplication(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	app, err := h.deps.Applications.Create(r.Context(), principal(r).ID, body)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (h *Handler) listApplications(w http.ResponseWriter, r *http.Request) {
	var req application.ListRequest
	if err := decode(w, r, &req); err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	page, err := h.deps.Applications.List(r.Context(), principal(r), req)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) getApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.deps.Applications.Get(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	items, err := h.deps.Applications.History(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type certificateResponse struct {
	ApplicationID     string `json:"applicationId"`
	CertificateNumber string `json:"certificateNumber"`
	CertificatePath   string `json:"certificatePath"`
}

func (h *Handler) certificate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	app, err := h.deps.Applications.Get(r.Context(), principal(r), id)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	if !app.IsCertificateGenerated || app.CertificatePath == nil {
		apperrors.WriteHTTP(w, apperrors.NewResourceNotFoundError("certificate", id))
		return
	}
	resp := certificateResponse{ApplicationID: app.ID, CertificatePath: *app.CertificatePath}
	if app.CertificateNumber != nil {
		resp.CertificateNumber = *app.CertificateNumber
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) pending(w http.ResponseWriter, r *http.Request) {
	items, err := h.deps.Applications.Pending(r.Context(), workflow.Role(principal(r).Role))
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// search reads q, stage, positionType (both repeatable), from and size.
// Officers only ever see the position types they handle.
func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := search.Query{Text: strings.TrimSpace(params.Get("q"))}

	for _, v := range params["stage"] {
		st, err := workflow.ParseStage(v)
		if err != nil {
			apperrors.WriteHTTP(w, apperrors.NewValidationError("invalid stage filter",
				apperrors.FieldError{Field: "stage", Code: "INVALID_ENUM_VALUE", Message: err.Error()}))
			return
		}
		q.Stages = append(q.Stages, st)
	}
	for _, v := range params["positionType"] {
		pt, err := workflow.ParsePositionType(v)
		if err != nil {
			apperrors.WriteHTTP(w, apperrors.NewValidationError("invalid position type filter",
				apperrors.FieldError{Field: "positionType", Code: "INVALID_ENUM_VALUE", Message: err.Error()}))
			return
		}
		q.PositionTypes = append(q.PositionTypes, pt)
	}
	q.From, _ = strconv.Atoi(params.Get("from"))
	q.Size, _ = strconv.Atoi(params.Get("size"))

	role := workflow.Role(principal(r).Role)
	if role != workflow.RoleAdmin {
		q = search.ForRole(q, role)
	}

	res, err := h.deps.Search.Search(r.Context(), q)
	if err != nil {
		if _, ok := apperrors.As(err); !ok {
			err = apperrors.NewSearchQueryFailedError(err)
		}
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) saveDraft(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	stored, err := h.deps.Drafts.Save(r.Context(), principal(r).ID, body)
	if err != nil {
		apperrors.WriteHTTP(w, draftError(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(stored)
}

func (h *Handler) loadDraft(w http.ResponseWriter, r *http.Request) {
	stored, err := h.deps.Drafts.Load(r.Context(), principal(r).ID)
	if err != nil {
		apperrors.WriteHTTP(w, draftError(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(stored)
}

func (h *Handler) deleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Drafts.Delete(r.Context(), principal(r).ID); err != nil {
		apperrors.WriteHTTP(w, draftError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func draftError(err error) error {
	switch {
	case errors.Is(err, draft.ErrNotFound):
		return apperrors.NewResourceNotFoundError("draft", "")
	case errors.Is(err, draft.ErrInvalid), errors.Is(err, draft.ErrTooLarge):
		return apperrors.NewValidationError(err.Error())
	default:
		return apperrors.NewExternalServiceError("draft store", err)
	}
}
