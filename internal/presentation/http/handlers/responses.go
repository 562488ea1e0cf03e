// Package handlers provides the HTTP handlers for the content API.
package handlers

import (
	"errors"
	"net/http"
	"regexp"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/pagecontent-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/logging"
)

// errorStatus maps service errors onto HTTP status codes.
func errorStatus(err error) int {
	var (
		ve       *content.ValidationError
		conflict *content.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, content.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &conflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError writes {success:false, message[, details]} and logs server
// errors. Store failures carry the driver's diagnostics as details.
func respondError(c *gin.Context, logger *logging.ChanneledLogger, operation string, err error) {
	status := errorStatus(err)
	body := gin.H{"success": false, "message": err.Error()}

	var (
		storeErr *content.StoreError
		conflict *content.ConflictError
	)
	switch {
	case errors.As(err, &storeErr):
		if details := storeErr.Details(); len(details) > 0 {
			body["details"] = details
		}
	case errors.As(err, &conflict):
		body["details"] = gin.H{"pageId": conflict.PageID, "entries": conflict.Entries}
	}

	if status >= http.StatusInternalServerError {
		logger.LogError(logging.ChannelContent, operation, err, map[string]any{
			"path":      c.Request.URL.Path,
			"requestId": logging.RequestIDFromContext(c.Request.Context()),
		})
	}
	c.JSON(status, body)
}

// validationFailure turns an ozzo error into a ValidationError naming the
// first failing field.
func validationFailure(err error) error {
	var errs validation.Errors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return content.NewValidationError("", err.Error())
	}
	fields := make([]string, 0, len(errs))
	for f := range errs {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return content.NewValidationError(fields[0], errs[fields[0]].Error())
}

func badBody(err error) error {
	return content.NewValidationError("body", "invalid request body: "+err.Error())
}

// splitList parses a comma separated query parameter.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var requiredValue = validation.By(func(value any) error {
	if v, ok := value.(content.Value); ok && v.IsNull() {
		return errors.New("is required")
	}
	return nil
})

var pageIDRules = []validation.Rule{
	validation.Required,
	validation.Length(1, 128),
	validation.Match(regexp.MustCompile(`^[^.]+$`)).Error("must not contain '.'"),
}
