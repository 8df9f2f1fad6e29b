package peatio

import "peatio/pkg/core"

// Peatio API v2 error codes.
const (
	codeArgumentError       = 1001
	codeAuthorizationFailed = 2001
	codeCreateOrderFailed   = 2002
	codeCancelOrderFailed   = 2003
	codeOrderNotFound       = 2004
	codeIncorrectSignature  = 2005
	codeTonceUsed           = 2006
	codeInvalidTonce        = 2007
	codeInvalidAccessKey    = 2008
	codeDisabledAccessKey   = 2009
	codeExpiredAccessKey    = 2010
	codeOutOfScope          = 2011
)

// Classify maps a Peatio error code to an ErrorType.
func Classify(code int) core.ErrorType {
	switch code {
	case codeArgumentError:
		return core.ErrorTypeBadRequest
	case codeAuthorizationFailed, codeIncorrectSignature, codeTonceUsed, codeInvalidTonce,
		codeInvalidAccessKey, codeDisabledAccessKey, codeExpiredAccessKey, codeOutOfScope:
		return core.ErrorTypeAuthentication
	case codeCreateOrderFailed, codeCancelOrderFailed:
		return core.ErrorTypeInvalidOrder
	case codeOrderNotFound:
		return core.ErrorTypeNotFound
	default:
		if code >= 1000 && code < 2000 {
			return core.ErrorTypeBadRequest
		}
		if code >= 2000 && code < 3000 {
			return core.ErrorTypeInvalidOrder
		}
		return core.ErrorTypeUnknown
	}
}
