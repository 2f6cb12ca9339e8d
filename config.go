package rrl

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidParameter is wrapped by every configuration error returned from [New].
var ErrInvalidParameter = errors.New("invalid parameter")

// Config provides the variable settings for a [Limiter].
// A Config should only ever be created with [NewConfig] as it requires non-zero
// default values.
// All Config values are set with the [Config.SetValue] function.
//
// A default Config is effectively a no-op as all per-second rates default to zero.
// Unset category rates default to responses-per-second when the Config is passed to
// [New].
//
// The following keywords are accepted:
//
// window int SECONDS - the number of SECONDS of debt an account retains; caps the
// maximum penalty duration after a flood subsides.
// Must be between 1 and 3600.
// Default 15.
//
// ipv4-prefix-length int LENGTH - the prefix LENGTH in bits used to identify an ipv4
// client network.
// Must be between 0 and 32.
// Default 24.
//
// ipv6-prefix-length int LENGTH - the prefix LENGTH in bits used to identify an ipv6
// client network.
// Must be between 0 and 128.
// Default 56.
//
// responses-per-second int RATE - the number of CategoryQuery responses allowed per
// second. A RATE of 0 disables rate limiting of that category.
// Default 0.
//
// nxdomains-per-second int RATE - the number of CategoryNxDomain responses allowed
// per second. A RATE of 0 disables rate limiting of that category.
// Defaults to responses-per-second.
//
// errors-per-second int RATE - the number of CategoryError responses allowed per
// second (excluding NXDOMAIN). A RATE of 0 disables rate limiting of that category.
// Defaults to responses-per-second.
//
// slip-ratio int RATIO - the ratio of rate-limited responses which are given a
// truncated response over a dropped response.
// A RATIO of 0 means all rate-limited responses are dropped, 1 means every
// rate-limited response is truncated and the upper limit of 10 means 1 in every 10 is
// truncated with the remaining 9 dropped.
// Default 2.
//
// min-table-size int SIZE - the number of accounts pre-allocated at construction.
// Must be positive.
// Default 500.
//
// max-table-size int SIZE - the maximum number of accounts tracked at one time. Must
// be at least min-table-size (checked by [New]).
// Default 100000.
//
// requests-per-second int RATE - the number of requests allowed per second from one
// source network, on any transport. A RATE of 0 disables request limiting.
// This value applies to the claimed source of the query whereas all other rates apply
// to response details.
// Default 0.
//
// all-per-second int RATE - a ceiling on the total number of responses sent per
// second across all accounts. Only responses in categories with a non-zero rate are
// counted; responses in a disabled category are never limited by it.
// A RATE of 0 disables the ceiling.
// Default 0.
//
// log-only bool - compute and log verdicts but expect the caller to send every
// response regardless.
// Default false.
type Config struct {
	window int

	ipv4PrefixLength int
	ipv6PrefixLength int

	responsesPerSecond int
	nxdomainsPerSecond int
	errorsPerSecond    int
	requestsPerSecond  int
	allPerSecond       int

	slipRatio    int
	minTableSize int
	maxTableSize int

	logOnly bool

	// Managed by SetValue and checked by finalize
	nxdomainsSet bool
	errorsSet    bool
}

// These defaults largely reflect those recommended by ISC.
var defaultConfig = Config{
	window:           15,
	ipv4PrefixLength: 24,
	ipv6PrefixLength: 56,
	slipRatio:        2,
	minTableSize:     500,
	maxTableSize:     100000,
}

// NewConfig returns a new Config with all the default values set. This is the only
// way you should ever create a Config.
func NewConfig() *Config {
	c := defaultConfig // Take a copy

	return &c
}

// IsActive returns true if at least one of the rates is set and thus causes Check to
// evaluate accounts. IOWs it returns !no-op.
func (c *Config) IsActive() bool {
	return c.responsesPerSecond > 0 || c.nxdomainsPerSecond > 0 || c.errorsPerSecond > 0 ||
		c.requestsPerSecond > 0
}

// argInvalidErr is a helper for SetValue to generate a common error when the argument
// value supplied cannot be parsed or is outside the valid range.
func argInvalidErr(keyword, val string, em interface{}) error {
	if t, ok := em.(error); ok {
		return fmt.Errorf("%w: %s='%s' %w", ErrInvalidParameter, keyword, val, t)
	}

	return fmt.Errorf("%w: %s='%s' %s", ErrInvalidParameter, keyword, val, em)
}

// getRateArg is a helper to parse a non-negative per-second rate.
func getRateArg(keyword, arg string) (int, error) {
	r, err := strconv.Atoi(arg)
	if err != nil {
		return 0, argInvalidErr(keyword, arg, err)
	}
	if r < 0 {
		return 0, argInvalidErr(keyword, arg, "cannot be negative")
	}

	return r, nil
}

// SetValue changes the configuration value for the nominated keyword.
//
// SetValue is provided as a keyword-based setter so that it slots under most
// configuration front-ends; serendipitously the keywords also work as option names
// for programs using [https://pkg.go.dev/flag], such as --window xx.
//
// See [Config] for a full list of valid keywords.
//
// Example:
//
//	c := NewConfig()
//	c.SetValue("window", "30")
func (c *Config) SetValue(keyword string, arg string) error {
	switch keyword {
	case "window":
		w, err := strconv.Atoi(arg)
		if err != nil {
			return argInvalidErr(keyword, arg, err)
		}
		if w <= 0 || w > 3600 { // One second to one hour
			return argInvalidErr(keyword, arg, "window must be between 1 and 3600")
		}
		c.window = w

	case "ipv4-prefix-length":
		i, err := strconv.Atoi(arg)
		if err != nil {
			return argInvalidErr(keyword, arg, err)
		}
		if i < 0 || i > 32 {
			return argInvalidErr(keyword, arg, "must be between 0 and 32")
		}
		c.ipv4PrefixLength = i

	case "ipv6-prefix-length":
		i, err := strconv.Atoi(arg)
		if err != nil {
			return argInvalidErr(keyword, arg, err)
		}
		if i < 0 || i > 128 {
			return argInvalidErr(keyword, arg, "must be between 0 and 128")
		}
		c.ipv6PrefixLength = i

	case "responses-per-second":
		i, err := getRateArg(keyword, arg)
		if err != nil {
			return err
		}
		c.responsesPerSecond = i

	case "nxdomains-per-second":
		i, err := getRateArg(keyword, arg)
		if err != nil {
			return err
		}
		c.nxdomainsPerSecond = i
		c.nxdomainsSet = true

	case "errors-per-second":
		i, err := getRateArg(keyword, arg)
		if err != nil {
			return err
		}
		c.errorsPerSecond = i
		c.errorsSet = true

	case "requests-per-second":
		i, err := getRateArg(keyword, arg)
		if err != nil {
			return err
		}
		c.requestsPerSecond = i

	case "all-per-second":
		i, err := getRateArg(keyword, arg)
		if err != nil {
			return err
		}
		c.allPerSecond = i

	case "slip-ratio":
		i, err := strconv.Atoi(arg)
		if err != nil {
			return argInvalidErr(keyword, arg, err)
		}
		if i < 0 || i > 10 {
			return argInvalidErr(keyword, arg, "must be between 0 and 10")
		}
		c.slipRatio = i

	case "min-table-size":
		i, err := strconv.Atoi(arg)
		if err != nil {
			return argInvalidErr(keyword, arg, err)
		}
		if i <= 0 {
			return argInvalidErr(keyword, arg, "must be positive")
		}
		c.minTableSize = i

	case "max-table-size":
		i, err := strconv.Atoi(arg)
		if err != nil {
			return argInvalidErr(keyword, arg, err)
		}
		if i <= 0 {
			return argInvalidErr(keyword, arg, "must be positive")
		}
		c.maxTableSize = i

	case "log-only":
		b, err := strconv.ParseBool(arg)
		if err != nil {
			return argInvalidErr(keyword, arg, err)
		}
		c.logOnly = b

	default:
		return fmt.Errorf("%w: unknown SetValue keyword '%v'", ErrInvalidParameter, keyword)
	}

	return nil
}

// finalize is called as part of the Config being imported into the Limiter. Category
// rates which were never set default to responses-per-second, which may itself not be
// set...
func (c *Config) finalize() {
	if !c.nxdomainsSet {
		c.nxdomainsPerSecond = c.responsesPerSecond
	}
	if !c.errorsSet {
		c.errorsPerSecond = c.responsesPerSecond
	}
}

// validate re-checks the cross-field invariants which SetValue cannot see.
func (c *Config) validate() error {
	if c.ipv4PrefixLength < 0 || c.ipv4PrefixLength > 32 {
		return fmt.Errorf("%w: bad IPv4 prefix: %d", ErrInvalidParameter, c.ipv4PrefixLength)
	}
	if c.ipv6PrefixLength < 0 || c.ipv6PrefixLength > 128 {
		return fmt.Errorf("%w: bad IPv6 prefix: %d", ErrInvalidParameter, c.ipv6PrefixLength)
	}
	if c.maxTableSize < c.minTableSize {
		return fmt.Errorf("%w: max-table-size (%d) must not be smaller than min-table-size (%d)",
			ErrInvalidParameter, c.maxTableSize, c.minTableSize)
	}

	return nil
}

// String is mainly intended for test code so it can verify internal values without
// having direct access to them.
// Of course the caller is free to use this printable value too.
func (c *Config) String() string {
	return fmt.Sprintf("%d %d-%d %d/%d/%d %d/%d %d/%d/%d %t %t/%t",
		c.window,
		c.ipv4PrefixLength, c.ipv6PrefixLength,
		c.responsesPerSecond, c.nxdomainsPerSecond, c.errorsPerSecond,
		c.requestsPerSecond, c.allPerSecond,
		c.slipRatio, c.minTableSize, c.maxTableSize,
		c.logOnly,
		c.nxdomainsSet, c.errorsSet)
}
