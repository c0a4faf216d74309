package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"settlementsam/internal/apperr"
)

// respondError writes the JSON error body for err. Domain errors keep their
// kind; anything else is logged and reported as internal.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		e = apperr.Wrap(apperr.Internal, "internal error", err)
	}
	status := apperr.HTTPStatus(e.Kind)
	if status >= http.StatusInternalServerError {
		log.Error("[http][error]", zap.String("path", c.FullPath()), zap.String("kind", string(e.Kind)), zap.Error(err))
	}
	_ = c.Error(err)

	body := gin.H{"error": e.Kind, "message": e.Message}
	if e.Kind == apperr.Internal {
		body["message"] = "internal error"
	}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	if e.Remaining != nil {
		body["remaining_attempts"] = *e.Remaining
	}
	if e.RetryAfter > 0 {
		secs := int(math.Ceil(e.RetryAfter.Seconds()))
		c.Header("Retry-After", strconv.Itoa(secs))
		body["retry_after"] = secs
	}
	c.AbortWithStatusJSON(status, body)
}

// bindError turns a gin binding failure into an invalid_input response with
// one detail per failed field.
func bindError(c *gin.Context, err error) {
	e := apperr.New(apperr.InvalidInput, "invalid request body")
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			e.Details = append(e.Details, fe.Field()+": failed "+fe.Tag())
		}
	} else {
		e.Details = []string{err.Error()}
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": e.Kind, "message": e.Message, "details": e.Details})
}

func pageParams(c *gin.Context) (limit, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		limit = 50
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// boolQuery returns nil when the parameter is absent or unparsable.
func boolQuery(c *gin.Context, key string) *bool {
	v, ok := c.GetQuery(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}
