package httputil

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/otplogin/internal/constants"
	"github.com/otplogin/internal/domain"
	"github.com/otplogin/internal/validation"
)

// ParseFlowState binds and validates the login flow state carried in the query string.
// Any missing or malformed field yields an INVALID_FLOW_STATE error.
func ParseFlowState(c *gin.Context, v *validation.Validator) (*domain.LoginFlowState, error) {
	var state domain.LoginFlowState
	if err := c.ShouldBindQuery(&state); err != nil {
		return nil, invalidFlowState(err)
	}
	if fieldErrs := v.Struct(&state); fieldErrs != nil {
		return nil, invalidFlowState(fieldErrs)
	}
	return &state, nil
}

func invalidFlowState(cause error) error {
	return domain.NewDomainError(domain.ErrInvalidFlowState.Code, domain.ErrInvalidFlowState.Message, cause)
}

// UserCreatedFlag reports whether the userCreated query parameter is set to 1
func UserCreatedFlag(c *gin.Context) bool {
	return c.Query("userCreated") == constants.UserCreatedYes
}

// WantsJSON reports whether the client prefers a JSON response over HTML
func WantsJSON(c *gin.Context) bool {
	accept := c.GetHeader("Accept")
	if accept == "" {
		return false
	}
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
