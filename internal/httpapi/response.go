package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"herdsync/internal/auth"
	"herdsync/internal/autosync"
	"herdsync/internal/codes"
	"herdsync/internal/core"
	"herdsync/internal/session"
	"herdsync/internal/settings"
	"herdsync/pkg/domain"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

// genericFailure is the only detail exposed for unexpected errors.
const genericFailure = "something went wrong"

type errorResponse struct {
	Message string                `json:"message"`
	Fields  []domain.FieldProblem `json:"fields,omitempty"`
}

type successResponse struct {
	Data any `json:"data"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, successResponse{Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Message: message})
}

func formatBindingError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, io.EOF) {
		return "Request body is empty"
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return fmt.Sprintf("Invalid JSON at byte offset %d", syntaxErr.Offset)
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("Field '%s' should be of type %s", typeErr.Field, typeErr.Type.String())
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		out := make([]string, 0, len(ve))
		for _, fe := range ve {
			if fe.Tag() == "required" {
				out = append(out, fmt.Sprintf("Field '%s' is required", fe.Field()))
				continue
			}
			out = append(out, fmt.Sprintf("Field '%s' failed validation for '%s'", fe.Field(), fe.Tag()))
		}
		return strings.Join(out, ", ")
	}
	return err.Error()
}

// writeError maps operation errors onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, errorResponse{Message: ve.Error(), Fields: ve.Fields})
	case errors.Is(err, codes.ErrNoCounty):
		fail(c, http.StatusConflict, "select a county in settings first")
	case errors.Is(err, settings.ErrUnknownCounty):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, session.ErrIncorrectPIN):
		fail(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, session.ErrInvalidPIN), errors.Is(err, session.ErrPINMismatch):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrInvalidState):
		fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrOffline):
		fail(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, autosync.ErrLocalStore):
		s.logger.Error("local store failure", "path", c.FullPath(), "error", err)
		fail(c, http.StatusInternalServerError, genericFailure)
	default:
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
		fail(c, http.StatusInternalServerError, genericFailure)
	}
}
