package mcpmgr

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// Classification decides what a failed modern-transport attempt means.
type Classification int

const (
	// Fatal failures are reported as-is: network errors, timeouts, 5xx.
	Fatal Classification = iota
	// FallbackEligible failures are client-error rejections (4xx) that
	// indicate a transport mismatch, so the legacy transport is tried.
	FallbackEligible
)

func (c Classification) String() string {
	if c == FallbackEligible {
		return "fallback_eligible"
	}
	return "fatal"
}

var (
	clientErrorCode = regexp.MustCompile(`\b40[0-9]\b`)
	authErrorCode   = regexp.MustCompile(`\b40[123]\b`)
	urlText         = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*://\S+`)
)

// Phrases that appear in transport errors when the underlying client only
// surfaces http.StatusText. "session terminated" is a heuristic: some
// servers close the session instead of answering with a status.
var clientErrorPhrases = []string{
	"bad request",
	"unauthorized",
	"payment required",
	"forbidden",
	"not found",
	"method not allowed",
	"method not found",
	"not acceptable",
	"conflict",
	"session terminated",
}

var authErrorPhrases = []string{
	"unauthorized",
	"payment required",
	"forbidden",
}

// Classify maps a modern-transport failure to FallbackEligible or Fatal.
// A structured status wins when present; text matching is only consulted
// when the error carries no status.
func Classify(err error) Classification {
	if err == nil {
		return Fatal
	}
	if code, ok := statusOf(err); ok {
		if code >= 400 && code < 500 {
			return FallbackEligible
		}
		return Fatal
	}
	if isTimeout(err) {
		return Fatal
	}
	if looksLikeClientError(err.Error()) {
		return FallbackEligible
	}
	return Fatal
}

// authRejection reports whether err is a 401/402/403-equivalent and the
// status when one is known.
func authRejection(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	if code, ok := statusOf(err); ok {
		switch code {
		case 401, 402, 403:
			return code, true
		}
		return code, false
	}
	if isTimeout(err) {
		return 0, false
	}
	return matchAuthText(err.Error())
}

func matchAuthText(s string) (int, bool) {
	lower := scrub(s)
	if m := authErrorCode.FindString(lower); m != "" {
		code, _ := strconv.Atoi(m)
		return code, true
	}
	for _, p := range authErrorPhrases {
		if strings.Contains(lower, p) {
			switch p {
			case "unauthorized":
				return 401, true
			case "payment required":
				return 402, true
			default:
				return 403, true
			}
		}
	}
	return 0, false
}

func looksLikeClientError(s string) bool {
	lower := scrub(s)
	if clientErrorCode.MatchString(lower) {
		return true
	}
	for _, p := range clientErrorPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// scrub lowercases s and drops URLs, whose paths may contain digits.
func scrub(s string) string {
	return strings.ToLower(urlText.ReplaceAllString(s, ""))
}

func statusOf(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode > 0 {
		return se.StatusCode, true
	}
	return 0, false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
