package gateway

// The gateway reports everything through one error callback; these
// predicates are the shared vocabulary every waiting handler applies to
// decide whether a given event ends its logical request.

// warningCodeFloor is the gateway convention: codes at or above it are
// informational notices, not failures.
const warningCodeFloor = 2100

// CodeMarketClosed is reported for an order that was accepted but will only
// be processed once the market reopens. It never terminates an order wait on
// its own.
const CodeMarketClosed = 399

// Codes meaning the whole session is unusable. An error carrying one of
// these terminates every outstanding request, matched id or not.
var connectionErrorCodes = map[int64]struct{}{
	502:  {}, // cannot connect
	504:  {}, // not connected
	509:  {}, // exception caught while reading socket
	1100: {}, // connectivity lost
	1300: {}, // socket port reset
}

// Codes meaning one specific request cannot proceed.
var requestErrorCodes = map[int64]struct{}{
	162: {}, // historical data service error
	200: {}, // no security definition found
	203: {}, // security not available for this account
	321: {}, // server error validating request
	354: {}, // not subscribed to requested market data
}

// Explicit series-complete markers.
var requestEndTypes = map[EventType]struct{}{
	EventTickSnapshotEnd:     {},
	EventOpenOrderEnd:        {},
	EventAccountDownloadEnd:  {},
	EventContractDetailsEnd:  {},
	EventPriceBarComplete:    {},
	EventExecutionDetailsEnd: {},
	EventScanEnd:             {},
}

// IsWarningCode reports whether a raw numeric code is informational.
func IsWarningCode(code int64) bool {
	return code >= warningCodeFloor
}

// IsWarning reports whether an error event is informational. An event
// carrying an exception rather than a numeric code is never a warning, and
// neither is one with no code at all.
func IsWarning(ev Event) bool {
	if ev.Type != EventError {
		return false
	}
	if ev.Err != nil {
		return false
	}
	if ev.Code == NoCode {
		return false
	}
	return IsWarningCode(ev.Code)
}

// IsError is the complement of IsWarning.
func IsError(ev Event) bool {
	return !IsWarning(ev)
}

// IsRequestErrorCode reports whether a code means a single request cannot
// proceed.
func IsRequestErrorCode(code int64) bool {
	_, ok := requestErrorCodes[code]
	return ok
}

// IsRequestError reports whether an event is a request-level error.
func IsRequestError(ev Event) bool {
	return ev.Type == EventError && IsRequestErrorCode(ev.Code)
}

// IsConnErrorCode reports whether a code means the session is unusable.
func IsConnErrorCode(code int64) bool {
	_, ok := connectionErrorCodes[code]
	return ok
}

// IsConnError reports whether an event is a connection-level error.
func IsConnError(ev Event) bool {
	return ev.Type == EventError && IsConnErrorCode(ev.Code)
}

// IsErrorEnd reports whether an error event terminates the request waiting
// on expected. Connection-level errors terminate unconditionally; any other
// real error terminates only the wait whose id matches its own. An event
// with no id of its own (NoID) matches only an unscoped wait.
func IsErrorEnd(expected int64, ev Event) bool {
	if ev.Type != EventError || !IsError(ev) {
		return false
	}
	if IsConnError(ev) {
		return true
	}
	return ev.CorrelationID() == expected
}

// IsRequestEnd reports whether an event is the series-complete marker for
// the request waiting on expected. With expected == NoID any marker of an
// end type terminates the wait.
func IsRequestEnd(expected int64, ev Event) bool {
	if _, ok := requestEndTypes[ev.Type]; !ok {
		return false
	}
	return expected == NoID || expected == ev.RequestID
}

// IsEnd is the single decision point every handler uses to know when to
// stop waiting.
func IsEnd(expected int64, ev Event) bool {
	return IsErrorEnd(expected, ev) || IsRequestEnd(expected, ev)
}
