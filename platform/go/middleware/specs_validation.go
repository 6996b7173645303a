package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"

	platformauth "github.com/netpesa/hotspot-billing/platform/go/auth"
)

const (
	problemTypeValidation   = "https://netpesa.io/problems/validation-error"
	problemTypeUnauthorized = "https://netpesa.io/problems/unauthorized"
	problemTypeNotFound     = "https://netpesa.io/problems/not-found"
)

// NewSpecValidator validates requests against spec before they reach a handler. Rejections
// are written as application/problem+json.
func NewSpecValidator(spec *openapi3.T, auth openapi3filter.AuthenticationFunc) func(http.Handler) http.Handler {
	return oapimiddleware.OapiRequestValidatorWithOptions(spec, &oapimiddleware.Options{
		Options: openapi3filter.Options{
			AuthenticationFunc: auth,
		},
		ErrorHandler:          writeValidationProblem,
		SilenceServersWarning: true,
	})
}

// OperatorAuthentication satisfies operations that declare bearerAuth. When enforce is set the
// request must carry the Operator stored by auth.RequireToken; otherwise any request passes.
func OperatorAuthentication(enforce bool) openapi3filter.AuthenticationFunc {
	return func(ctx context.Context, input *openapi3filter.AuthenticationInput) error {
		if !enforce || input == nil || input.SecuritySchemeName != "bearerAuth" {
			return nil
		}
		r := input.RequestValidationInput.Request
		if r == nil {
			return errors.New("no request in validation input")
		}
		if _, ok := platformauth.ExtractBearerToken(r); !ok {
			return errors.New("missing or invalid Authorization header")
		}
		if _, ok := platformauth.OperatorFromContext(r.Context()); !ok {
			return errors.New("bearer token not accepted")
		}
		return nil
	}
}

type problem struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func writeValidationProblem(w http.ResponseWriter, message string, status int) {
	problemType := problemTypeValidation
	switch status {
	case http.StatusUnauthorized:
		problemType = problemTypeUnauthorized
		w.Header().Set("WWW-Authenticate", `Bearer realm="ops"`)
	case http.StatusNotFound:
		problemType = problemTypeNotFound
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem{Type: problemType, Title: http.StatusText(status), Status: status, Detail: message})
}
