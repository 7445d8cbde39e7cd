package trap

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Guest-facing result codes. A value >= 0 is success (the byte count
// for read / write, 0 otherwise); a negative value carries a POSIX
// errno magnitude.
const (
	// RetOK is the generic success result
	RetOK int32 = 0
	// RetInval rejects bad argument shape: channel handle, offset,
	// unmapped buffer, unaligned protection request
	RetInval = -int32(unix.EINVAL)
	// RetFault rejects bad sizes and address-space overflow
	RetFault = -int32(unix.EFAULT)
	// RetAccess rejects ranges outside host management or without the
	// required permission
	RetAccess = -int32(unix.EACCES)
	// RetPerm rejects unknown operations, disallowed protection
	// combinations and failed code validation
	RetPerm = -int32(unix.EPERM)
	// RetQuota rejects operations that would exceed a channel quota
	RetQuota = -int32(unix.EDQUOT)
)

// errnoResult converts a host-side error into a guest result, negating
// the underlying errno when there is one.
func errnoResult(err error) int32 {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return -int32(errno)
	}
	return RetAccess
}
