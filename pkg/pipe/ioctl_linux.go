package pipe

import "golang.org/x/sys/unix"

// ioctlReadable reports the bytes waiting in a pipe.
const ioctlReadable = unix.TIOCINQ
