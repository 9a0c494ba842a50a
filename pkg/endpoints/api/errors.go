package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/mpapenbr/racestrategy-service-go/log"
	"github.com/mpapenbr/racestrategy-service-go/pkg/normalize"
	"github.com/mpapenbr/racestrategy-service-go/pkg/pipeline"
	"github.com/mpapenbr/racestrategy-service-go/pkg/processing/enrich"
	"github.com/mpapenbr/racestrategy-service-go/pkg/source"
	"github.com/mpapenbr/racestrategy-service-go/pkg/strategy/validate"
)

var errBadRequest = errors.New("bad request")

type ErrorCode string

const (
	CodeBadRequest         ErrorCode = "bad_request"
	CodeInvalidTelemetry   ErrorCode = "invalid_telemetry"
	CodeUnrecognizedSchema ErrorCode = "unrecognized_schema"
	CodeNoTelemetry        ErrorCode = "no_telemetry_available"
	CodeNoRaceContext      ErrorCode = "no_race_context"
	CodeGenerationFailed   ErrorCode = "generation_failed"
	CodeInternal           ErrorCode = "internal_error"
)

const maxRequestBodySize = 1 << 20

type ErrorResponse struct {
	Code     ErrorCode                    `json:"code"`
	Message  string                       `json:"message"`
	Reason   pipeline.FailureReason       `json:"reason,omitempty"`
	Fields   map[string]string            `json:"fields,omitempty"`
	Rejected map[int][]validate.Violation `json:"rejected,omitempty"`
}

// errorResponse maps err to the http status and the response body
func errorResponse(err error) (int, *ErrorResponse) {
	ret := &ErrorResponse{Code: CodeInternal, Message: err.Error()}
	var verrs validator.ValidationErrors
	var genErr *pipeline.GenerationFailedError
	switch {
	case errors.As(err, &verrs):
		ret.Code = CodeBadRequest
		ret.Message = "request validation failed"
		ret.Fields = make(map[string]string, len(verrs))
		for _, fe := range verrs {
			ret.Fields[fe.Namespace()] = fe.Tag()
		}
		return http.StatusBadRequest, ret
	case errors.Is(err, errBadRequest):
		ret.Code = CodeBadRequest
		return http.StatusBadRequest, ret
	case errors.Is(err, normalize.ErrUnrecognizedSchema):
		ret.Code = CodeUnrecognizedSchema
		return http.StatusUnprocessableEntity, ret
	case errors.Is(err, enrich.ErrInvalidTelemetry):
		ret.Code = CodeInvalidTelemetry
		return http.StatusUnprocessableEntity, ret
	case errors.Is(err, source.ErrNoTelemetryAvailable):
		ret.Code = CodeNoTelemetry
		return http.StatusConflict, ret
	case errors.Is(err, pipeline.ErrNoRaceContext):
		ret.Code = CodeNoRaceContext
		return http.StatusConflict, ret
	case errors.As(err, &genErr):
		ret.Code = CodeGenerationFailed
		ret.Reason = genErr.Reason
		ret.Rejected = genErr.Rejected
		return http.StatusServiceUnavailable, ret
	case errors.Is(err, pipeline.ErrGenerationFailed):
		ret.Code = CodeGenerationFailed
		return http.StatusServiceUnavailable, ret
	default:
		return http.StatusInternalServerError, ret
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		h.l.Warn("request failed",
			log.String("path", r.URL.Path), log.Int("status", status), log.ErrorField(err))
	} else {
		h.l.Debug("request rejected",
			log.String("path", r.URL.Path), log.Int("status", status), log.ErrorField(err))
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
