package wazirx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"spread-trading/internal/core"
)

const apiCodeTooManyRequests = 2136

var apiErrorMessageKinds = map[string]error{
	"too many api request":     core.ErrRateLimited,
	"insufficient balance":     core.ErrInsufficientBalance,
	"insufficient funds":       core.ErrInsufficientBalance,
	"order not found":          core.ErrOrderNotFound,
	"order does not exist":     core.ErrOrderNotFound,
	"invalid signature":        core.ErrAuth,
	"invalid api key":          core.ErrAuth,
	"api key is invalid":       core.ErrAuth,
	"request out of receiving": core.ErrTransient,
}

func parseAPIError(status int, body []byte) error {
	apiErr := APIError{Status: status}
	var raw apiError
	if err := json.Unmarshal(body, &raw); err == nil && raw.Message != "" {
		apiErr.Code = raw.Code
		apiErr.Message = raw.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return classifyAPIError(apiErr)
}

func classifyAPIError(apiErr APIError) error {
	kinds := classifyAPIErrorKinds(apiErr)
	if len(kinds) == 0 {
		return apiErr
	}
	errChain := make([]error, 0, 1+len(kinds))
	errChain = append(errChain, apiErr)
	errChain = append(errChain, kinds...)
	return errors.Join(errChain...)
}

func classifyAPIErrorKinds(apiErr APIError) []error {
	kinds := make([]error, 0, 2)
	if apiErr.Code == apiCodeTooManyRequests {
		kinds = appendErrorKind(kinds, core.ErrRateLimited)
	}
	switch {
	case apiErr.Status == http.StatusTooManyRequests:
		kinds = appendErrorKind(kinds, core.ErrRateLimited)
	case apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden:
		kinds = appendErrorKind(kinds, core.ErrAuth)
	case apiErr.Status == http.StatusNotFound:
		kinds = appendErrorKind(kinds, core.ErrOrderNotFound)
	case apiErr.Status >= 500:
		kinds = appendErrorKind(kinds, core.ErrTransient)
	}
	msg := normalizeAPIErrorMsg(apiErr.Message)
	for fragment, kind := range apiErrorMessageKinds {
		if strings.Contains(msg, fragment) {
			kinds = appendErrorKind(kinds, kind)
		}
	}
	return kinds
}

func appendErrorKind(kinds []error, kind error) []error {
	if kind == nil {
		return kinds
	}
	for _, existing := range kinds {
		if existing == kind {
			return kinds
		}
	}
	return append(kinds, kind)
}

func normalizeAPIErrorMsg(msg string) string {
	return strings.ToLower(strings.TrimSpace(msg))
}

func AsAPIError(err error) (APIError, bool) {
	if err == nil {
		return APIError{}, false
	}
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		return APIError{}, false
	}
	return apiErr, true
}
