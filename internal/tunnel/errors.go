package tunnel

import "errors"

// Sentinel errors for the tunnel record and fragment pipeline. All of them
// are non-fatal to the enclosing tunnel: callers drop the offending record,
// fragment, or datagram and log once, per the error taxonomy.
var (
	ErrBadChecksum    = errors.New("tunnel: checksum mismatch")
	ErrBadPadding     = errors.New("tunnel: no zero separator found in payload window")
	ErrBadFragment    = errors.New("tunnel: fragment sequence or message id mismatch")
	ErrInvalidLength  = errors.New("tunnel: invalid length")
	ErrWrongRole      = errors.New("tunnel: operation not valid for this role")
	ErrOversizeBlock  = errors.New("tunnel: delivery instructions exceed record window")
	ErrUnknownDeliveryType = errors.New("tunnel: unknown delivery type")
)
