package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/Clark-Hu/moviestore/internal/errors"
)

const maxRequestBody = 1 << 20 // 1 MiB

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	return v
}

// decodeJSONBody reads a single JSON object into dst and runs struct
// validation on it. Errors are already typed for respondError.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return decodeError(err)
	}
	if err := validate.Struct(dst); err != nil {
		return validationErrors(err)
	}
	return nil
}

func decodeError(err error) *apperrors.Error {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError
	switch {
	case errors.As(err, &syntaxError), errors.Is(err, io.ErrUnexpectedEOF):
		return apperrors.Wrap(apperrors.CodeValidation, err, "malformed JSON payload")
	case errors.As(err, &typeError):
		return apperrors.Wrap(apperrors.CodeValidation, err, fmt.Sprintf("invalid value for field %s", typeError.Field))
	case errors.Is(err, io.EOF):
		return apperrors.Wrap(apperrors.CodeValidation, err, "request body cannot be empty")
	case errors.As(err, &maxBytesError):
		return apperrors.Wrap(apperrors.CodeBadRequest, err, "request body too large")
	default:
		return apperrors.Wrap(apperrors.CodeBadRequest, err, "unable to parse request body")
	}
}

func validationErrors(err error) *apperrors.Error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return apperrors.Wrap(apperrors.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		details[fe.Field()] = validationMessage(fe)
	}
	return apperrors.New(apperrors.CodeValidation, "validation failed").WithDetails(details)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	}
	return "is invalid"
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.Error(context.Background(), "response.encode_failed", err)
		}
	}
}

// respondError renders err as the JSON error body. Untyped errors become
// INTERNAL_ERROR and never leak their message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := apperrors.As(err)
	if typed == nil {
		typed = apperrors.Wrap(apperrors.CodeInternal, err, "unexpected error")
	}
	meta := apperrors.MetadataFor(typed.Code())

	body := errorResponse{Code: string(typed.Code()), Message: meta.PublicMessage}
	if meta.HTTPStatus < http.StatusInternalServerError && typed.Message() != "" {
		body.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		body.Details = typed.Details()
	}

	ctx := s.logger.WithFields(r.Context(), map[string]any{
		"error_code": string(typed.Code()),
		"status":     meta.HTTPStatus,
	})
	if meta.HTTPStatus >= http.StatusInternalServerError {
		s.logger.Error(ctx, "request.error", err)
	} else {
		s.logger.Info(s.logger.WithField(ctx, "error", err.Error()), "request.rejected")
	}

	s.respondJSON(w, meta.HTTPStatus, body)
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.New(apperrors.CodeBadRequest, fmt.Sprintf("invalid %s parameter", name))
	}
	return id, nil
}
