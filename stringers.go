package rrl

import (
	"fmt"
)

func (rc ResponseCategory) String() string {
	switch rc {
	case CategoryQuery:
		return "CategoryQuery"
	case CategoryNxDomain:
		return "CategoryNxDomain"
	case CategoryError:
		return "CategoryError"
	}

	return fmt.Sprintf("Unstringable ResponseCategory %d", uint8(rc))
}

func (v Verdict) String() string {
	switch v {
	case OK:
		return "OK"
	case Drop:
		return "Drop"
	case Slip:
		return "Slip"
	}

	return fmt.Sprintf("Unstringable Verdict %d", int(v))
}

func (ipr IPReason) String() string {
	switch ipr {
	case IPOk:
		return "IPOk"
	case IPNotConfigured:
		return "IPNotConfigured"
	case IPRateLimit:
		return "IPRateLimit"
	}

	return fmt.Sprintf("Unstringable IPReason %d", int(ipr))
}

func (rtr RTReason) String() string {
	switch rtr {
	case RTOk:
		return "RTOk"
	case RTNotConfigured:
		return "RTNotConfigured"
	case RTNotReached:
		return "RTNotReached"
	case RTRateLimit:
		return "RTRateLimit"
	case RTReliable:
		return "RTReliable"
	case RTGlobalLimit:
		return "RTGlobalLimit"
	}

	return fmt.Sprintf("Unstringable RTReason %d", int(rtr))
}

func (s BlockSummary) String() string {
	return fmt.Sprintf("%s %d/%d %s", s.Network, s.Class, s.Type, s.Category)
}
