package rrl

import (
	"github.com/miekg/dns"
)

// A ResponseCategory is the distillation of the rcode of the response the caller plans
// to send.
// Each category is accounted separately and has its own configurable per-second rate.
//
// The following table represents all categories and the selection rules which are
// evaluated in order from top to bottom with CategoryError being the default if no
// other rule applies.
//
//	  ResponseCategory    rCode      Configuration Name
//	+-------------------+----------+----------------------+
//	| CategoryQuery     | NOERROR  | responses-per-second |
//	| CategoryNxDomain  | NXDOMAIN | nxdomains-per-second |
//	| CategoryError     | (others) | errors-per-second    |
//	+-------------------+----------+----------------------+
//
// An unknown rcode maps to CategoryError; that is a classification, not an error.
type ResponseCategory uint8

const (
	CategoryQuery ResponseCategory = iota
	CategoryNxDomain
	CategoryError
	CategoryLast
)

// NewResponseCategory is a helper function which classifies an rcode.
func NewResponseCategory(rCode int) ResponseCategory {
	switch rCode {
	case dns.RcodeSuccess:
		return CategoryQuery
	case dns.RcodeNameError:
		return CategoryNxDomain
	}

	return CategoryError
}

// Verdict is the resulting recommendation returned by [Limiter.Check].
// Callers should act accordingly.
//
// Values are: OK, Drop and Slip (aka send truncated if able).
type Verdict int

const (
	OK   Verdict = iota // Send the planned response
	Drop                // Do not send the planned response
	Slip                // Send a truncated response so the client retries over TCP
	VerdictLast
)

// IPReason represents the state of source-address rate limiting at the time the
// Verdict was determined.
// It is intended for diagnostic and statistical purposes only.
// Callers should expect that the range of reasons may increase or change over time.
type IPReason int

const (
	IPOk            IPReason = iota // Source CIDR is within rate limits
	IPNotConfigured                 // Config entry is zero
	IPRateLimit                     // Ran out of credits
	IPLast
)

// RTReason represents the state of response-account rate limiting at the time the
// Verdict was determined.
// It is intended for diagnostic and statistical purposes only.
// Callers should expect that the range of reasons may increase or change over time.
type RTReason int

const (
	RTOk            RTReason = iota // Account is in credit
	RTNotConfigured                 // Config entry for the category is zero
	RTNotReached                    // An earlier condition determined the Verdict
	RTRateLimit                     // Ran out of credits
	RTReliable                      // Response goes over a spoof-resistant transport
	RTGlobalLimit                   // all-per-second ceiling exceeded
	RTLast
)
