package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/sitebackuper/pkg/domain"
)

const (
	statusOk = "ok"
	statusNo = "no"
)

// response is the envelope of every action endpoint.
type response struct {
	Status string `json:"status"`
	Msg    string `json:"msg"`
	Url    string `json:"url,omitempty"`
}

func ok(msg string) response {
	return response{Status: statusOk, Msg: msg}
}

func no(msg string) response {
	return response{Status: statusNo, Msg: msg}
}

func writeJSON(w http.ResponseWriter, logger logrus.FieldLogger, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Error("Unable to encode response")
	}
}

// writeError translates core errors into user facing responses.
func writeError(w http.ResponseWriter, logger logrus.FieldLogger, err error) {
	code, msg := http.StatusInternalServerError, "Internal error"

	switch errors.Cause(err) {
	case domain.ErrInvalidService, domain.ErrUnknownServiceType:
		code, msg = http.StatusBadRequest, "Invalid service"
	case domain.ErrInvalidCredentials:
		code, msg = http.StatusBadRequest, err.Error()
	case domain.ErrMissingCredentials:
		code, msg = http.StatusBadRequest, "Service is not configured"
	case domain.ErrJobActive:
		code, msg = http.StatusConflict, "Another backup job is in progress"
	case domain.ErrRestoreRunning:
		code, msg = http.StatusConflict, "Restore is running"
	case domain.ErrBackupNotFound:
		code, msg = http.StatusNotFound, "Backup not found"
	case domain.ErrServiceNotFound:
		code, msg = http.StatusNotFound, "Service not found"
	case domain.ErrServiceConfigExists:
		code, msg = http.StatusConflict, "Service is already configured"
	case domain.ErrBackupNotRestorable:
		code, msg = http.StatusUnprocessableEntity, "Backup cannot be restored"
	}

	var br badRequestError
	if errors.As(err, &br) {
		code, msg = http.StatusBadRequest, string(br)
	}

	if code == http.StatusInternalServerError {
		logger.WithError(err).Error("Request failed")
	} else {
		logger.WithError(err).Debug("Request refused")
	}

	writeJSON(w, logger, code, no(msg))
}

type badRequestError string

func (e badRequestError) Error() string {
	return string(e)
}

func badRequest(msg string) error {
	return badRequestError(msg)
}

func pathId(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid id")
	}
	return id, nil
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body")
	}
	return nil
}
