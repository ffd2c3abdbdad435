package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	aiusagedomain "github.com/aware88/fresh-crm/internal/aiusage/domain"
	apikeydomain "github.com/aware88/fresh-crm/internal/apikey/domain"
	apikeyscope "github.com/aware88/fresh-crm/internal/apikey/scope"
	"github.com/aware88/fresh-crm/internal/authorization"
	contactdomain "github.com/aware88/fresh-crm/internal/contact/domain"
	emailaccountdomain "github.com/aware88/fresh-crm/internal/emailaccount/domain"
	featuredomain "github.com/aware88/fresh-crm/internal/feature/domain"
	leaddomain "github.com/aware88/fresh-crm/internal/lead/domain"
	notificationdomain "github.com/aware88/fresh-crm/internal/notification/domain"
	organizationdomain "github.com/aware88/fresh-crm/internal/organization/domain"
	orgsettingsdomain "github.com/aware88/fresh-crm/internal/orgsettings/domain"
	paymentdomain "github.com/aware88/fresh-crm/internal/payment/domain"
	pipelinedomain "github.com/aware88/fresh-crm/internal/pipeline/domain"
	plandomain "github.com/aware88/fresh-crm/internal/plan/domain"
	subscriptiondomain "github.com/aware88/fresh-crm/internal/subscription/domain"
	webhookdomain "github.com/aware88/fresh-crm/internal/webhook/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrOrgRequired        = errors.New("organization_required")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isForbiddenError(err):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: forbiddenMessage(err),
		}
	case isQuotaError(err):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "quota_exceeded",
			Message: quotaMessage(err),
		}
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, aiusagedomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "rate limit exceeded",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isBadSignatureError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_webhook",
			Message: err.Error(),
		}
	case isUnavailableError(err):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog maps a handler error onto log fields without
// leaking payload details.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "server_error", payload.Type
	case status >= http.StatusBadRequest:
		return "client_error", payload.Type
	default:
		return "none", ""
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrOrgRequired),
		errors.Is(err, apikeyscope.ErrInvalidScope):
		return true
	case isOrganizationValidationError(err),
		isPlanValidationError(err),
		isContactValidationError(err),
		isLeadValidationError(err),
		isPipelineValidationError(err),
		isWebhookValidationError(err),
		isNotificationValidationError(err),
		isEmailAccountValidationError(err),
		isAIUsageValidationError(err),
		isSubscriptionValidationError(err),
		isAPIKeyValidationError(err),
		isSettingsValidationError(err):
		return true
	default:
		return false
	}
}

func isOrganizationValidationError(err error) bool {
	switch {
	case errors.Is(err, organizationdomain.ErrInvalidName),
		errors.Is(err, organizationdomain.ErrInvalidEmail),
		errors.Is(err, organizationdomain.ErrInvalidRole),
		errors.Is(err, organizationdomain.ErrInvalidOrganization),
		errors.Is(err, organizationdomain.ErrInvalidMember):
		return true
	default:
		return false
	}
}

func isPlanValidationError(err error) bool {
	switch {
	case errors.Is(err, plandomain.ErrInvalidPlan),
		errors.Is(err, plandomain.ErrInvalidName),
		errors.Is(err, plandomain.ErrInvalidTier),
		errors.Is(err, plandomain.ErrInvalidCurrency):
		return true
	default:
		return false
	}
}

func isContactValidationError(err error) bool {
	switch {
	case errors.Is(err, contactdomain.ErrInvalidName),
		errors.Is(err, contactdomain.ErrInvalidEmail):
		return true
	default:
		return false
	}
}

func isLeadValidationError(err error) bool {
	return errors.Is(err, leaddomain.ErrInvalidQualification)
}

func isPipelineValidationError(err error) bool {
	switch {
	case errors.Is(err, pipelinedomain.ErrInvalidName),
		errors.Is(err, pipelinedomain.ErrInvalidTitle),
		errors.Is(err, pipelinedomain.ErrInvalidValue),
		errors.Is(err, pipelinedomain.ErrInvalidProbability),
		errors.Is(err, pipelinedomain.ErrInvalidContact),
		errors.Is(err, pipelinedomain.ErrInvalidStage):
		return true
	default:
		return false
	}
}

func isWebhookValidationError(err error) bool {
	switch {
	case errors.Is(err, webhookdomain.ErrInvalidURL),
		errors.Is(err, webhookdomain.ErrInvalidSecret),
		errors.Is(err, webhookdomain.ErrInvalidEventTypes),
		errors.Is(err, webhookdomain.ErrInvalidConfig):
		return true
	default:
		return false
	}
}

func isNotificationValidationError(err error) bool {
	switch {
	case errors.Is(err, notificationdomain.ErrInvalidType),
		errors.Is(err, notificationdomain.ErrInvalidTitle):
		return true
	default:
		return false
	}
}

func isEmailAccountValidationError(err error) bool {
	switch {
	case errors.Is(err, emailaccountdomain.ErrInvalidProvider),
		errors.Is(err, emailaccountdomain.ErrInvalidEmail),
		errors.Is(err, emailaccountdomain.ErrInvalidToken):
		return true
	default:
		return false
	}
}

func isAIUsageValidationError(err error) bool {
	switch {
	case errors.Is(err, aiusagedomain.ErrInvalidFeature),
		errors.Is(err, aiusagedomain.ErrInvalidAmount):
		return true
	default:
		return false
	}
}

func isSubscriptionValidationError(err error) bool {
	switch {
	case errors.Is(err, subscriptiondomain.ErrInvalidSubscription),
		errors.Is(err, subscriptiondomain.ErrInvalidStatus),
		errors.Is(err, subscriptiondomain.ErrInvalidPlan):
		return true
	default:
		return false
	}
}

func isAPIKeyValidationError(err error) bool {
	switch {
	case errors.Is(err, apikeydomain.ErrInvalidName),
		errors.Is(err, apikeydomain.ErrInvalidKeyID):
		return true
	default:
		return false
	}
}

func isSettingsValidationError(err error) bool {
	return errors.Is(err, orgsettingsdomain.ErrInvalidKey)
}

func isForbiddenError(err error) bool {
	switch {
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, organizationdomain.ErrForbidden),
		errors.Is(err, featuredomain.ErrFeatureNotEnabled),
		errors.Is(err, leaddomain.ErrScoringNotEnabled):
		return true
	default:
		return false
	}
}

func forbiddenMessage(err error) string {
	switch {
	case errors.Is(err, featuredomain.ErrFeatureNotEnabled):
		return "feature not enabled on current plan"
	case errors.Is(err, leaddomain.ErrScoringNotEnabled):
		return "lead scoring not enabled on current plan"
	default:
		return "forbidden"
	}
}

func isQuotaError(err error) bool {
	switch {
	case errors.Is(err, aiusagedomain.ErrQuotaExceeded),
		errors.Is(err, contactdomain.ErrContactLimitReached):
		return true
	default:
		return false
	}
}

func quotaMessage(err error) string {
	if errors.Is(err, contactdomain.ErrContactLimitReached) {
		return "contact limit reached on current plan"
	}
	return "ai message quota exceeded"
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, organizationdomain.ErrMemberExists),
		errors.Is(err, organizationdomain.ErrLastOwner),
		errors.Is(err, plandomain.ErrPlanExists),
		errors.Is(err, contactdomain.ErrContactExists),
		errors.Is(err, pipelinedomain.ErrStageExists),
		errors.Is(err, pipelinedomain.ErrStageInUse),
		errors.Is(err, pipelinedomain.ErrOpportunityClosed),
		errors.Is(err, subscriptiondomain.ErrAlreadyCanceled),
		errors.Is(err, aiusagedomain.ErrTopUpNotPaid),
		errors.Is(err, aiusagedomain.ErrReceiptUnavailable),
		errors.Is(err, emailaccountdomain.ErrReauthRequired),
		errors.Is(err, emailaccountdomain.ErrAccountDisconnected):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, organizationdomain.ErrNotFound),
		errors.Is(err, plandomain.ErrPlanNotFound),
		errors.Is(err, contactdomain.ErrContactNotFound),
		errors.Is(err, leaddomain.ErrContactNotFound),
		errors.Is(err, leaddomain.ErrScoreNotFound),
		errors.Is(err, pipelinedomain.ErrStageNotFound),
		errors.Is(err, pipelinedomain.ErrOpportunityNotFound),
		errors.Is(err, webhookdomain.ErrConfigNotFound),
		errors.Is(err, notificationdomain.ErrNotificationNotFound),
		errors.Is(err, emailaccountdomain.ErrAccountNotFound),
		errors.Is(err, orgsettingsdomain.ErrSettingNotFound),
		errors.Is(err, aiusagedomain.ErrTopUpNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, apikeydomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isBadSignatureError(err error) bool {
	switch {
	case errors.Is(err, paymentdomain.ErrInvalidSignature),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent):
		return true
	default:
		return false
	}
}

func isUnavailableError(err error) bool {
	switch {
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, paymentdomain.ErrProviderNotConfigured),
		errors.Is(err, paymentdomain.ErrCheckoutSessionRejected),
		errors.Is(err, emailaccountdomain.ErrProviderNotConfigured):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
