//go:build unix && !linux

package pipe

// ioctlReadable is FIONREAD, _IOR('f', 127, int), on the BSDs, darwin,
// solaris and aix.
const ioctlReadable = 0x4004667f
