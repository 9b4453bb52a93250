package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/driftkv/driftkv/internal/buckettype"
	"github.com/driftkv/driftkv/internal/metadata"
)

type createBucketTypeRequest struct {
	Active     *bool             `json:"active,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// handleCreateBucketType registers a bucket type. The reserved default type
// cannot be created explicitly.
func (s *Server) handleCreateBucketType(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["type"]
	if name == buckettype.DefaultType {
		writeError(w, http.StatusBadRequest, "the default bucket type is implicit and cannot be created")
		return
	}

	var req createBucketTypeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	bt := &metadata.BucketTypeMetadata{
		Name:       name,
		Active:     active,
		CreatedAt:  time.Now(),
		Properties: req.Properties,
	}

	err := s.metadataStore.CreateBucketType(r.Context(), bt)
	switch {
	case errors.Is(err, metadata.ErrBucketTypeAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, metadata.ErrInvalidBucketTypeName):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusCreated, bt)
	}
}

func (s *Server) handleGetBucketType(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["type"]

	bt, err := s.metadataStore.GetBucketType(r.Context(), name)
	switch {
	case errors.Is(err, metadata.ErrBucketTypeNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, bt)
	}
}

func (s *Server) handleListBucketTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.metadataStore.ListBucketTypes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"types": types})
}

func (s *Server) handleDeleteBucketType(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["type"]

	err := s.metadataStore.DeleteBucketType(r.Context(), name)
	switch {
	case errors.Is(err, metadata.ErrBucketTypeNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
