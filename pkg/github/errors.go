package github

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/saint0x/reposage/pkg/api"
)

// classify maps a go-github error onto the api error kinds
func classify(err error) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		e := api.NewError(api.KindRateLimited, err)
		if wait := time.Until(rateErr.Rate.Reset.Time); wait > 0 {
			e.RetryAfter = wait
		}
		return e
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		e := api.NewError(api.KindRateLimited, err)
		e.RetryAfter = abuseErr.GetRetryAfter()
		return e
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return api.NewError(kindForStatus(respErr.Response.StatusCode), err)
	}

	return api.NewError(api.KindOf(err), err)
}

func kindForStatus(status int) api.Kind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return api.KindAuth
	case status == http.StatusNotFound:
		return api.KindNotFound
	case status == http.StatusConflict:
		return api.KindConflict
	case status == http.StatusTooManyRequests:
		return api.KindRateLimited
	case status >= 500:
		return api.KindTransient
	default:
		return api.KindUnknown
	}
}

func notFound(format string, args ...interface{}) error {
	return api.Errorf(api.KindNotFound, format, args...)
}

func sizeExceeded(format string, args ...interface{}) error {
	return api.Errorf(api.KindSizeExceeded, format, args...)
}
