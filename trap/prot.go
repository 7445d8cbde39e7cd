package trap

import (
	"github.com/zhiqian1027/zerovm/pkg/userspace"
)

// Validator certifies a byte range as safe machine code before it may
// become executable. Validation happens in the same call that changes
// protection; results are never cached across requests.
type Validator interface {
	Validate(code []byte, guestAddr uint64) bool
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(code []byte, guestAddr uint64) bool

// Validate implements Validator.
func (f ValidatorFunc) Validate(code []byte, guestAddr uint64) bool {
	return f(code, guestAddr)
}

// DenyAll rejects every range. It is the default when no validator is
// wired, keeping the executable path fail-closed.
var DenyAll = ValidatorFunc(func([]byte, uint64) bool { return false })

func protHandle(d *Dispatcher, v *vector) int32 {
	return d.prot(v[2], uint32(v[3]), int64(v[4]))
}

// prot changes page protection on a guest range. Requests for
// executable rights pass through the validator first and leave
// protection untouched when validation fails.
func (d *Dispatcher) prot(addr uint64, size uint32, prot int64) int32 {
	space := d.sess.Space
	sys := space.Translate(addr)

	// both ends of the range must sit on protection granules; the guest
	// base is granule aligned, so guest and host alignment coincide
	if uint64(size)%userspace.PageSize != 0 {
		return RetInval
	}
	if addr%userspace.PageSize != 0 {
		return RetInval
	}

	// a region outside host management never changes protection
	if !space.CheckRange(sys, int64(size), userspace.ProtNone) {
		return RetAccess
	}

	switch int(prot) {
	case userspace.ProtNone,
		userspace.ProtRead,
		userspace.ProtWrite,
		userspace.ProtRead | userspace.ProtWrite:
		if err := space.Protect(sys, int64(size), int(prot)); err != nil {
			return errnoResult(err)
		}

	case userspace.ProtExec,
		userspace.ProtRead | userspace.ProtExec:
		// executable rights require the range to already be readable
		if !space.CheckRange(sys, int64(size), userspace.ProtRead) {
			return RetAccess
		}
		if !d.valid.Validate(space.Slice(sys, int64(size)), addr) {
			return RetPerm
		}
		if err := space.Protect(sys, int64(size), int(prot)); err != nil {
			return errnoResult(err)
		}

	default:
		return RetPerm
	}

	return RetOK
}
