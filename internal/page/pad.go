// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package page

// pad is cache line padding to prevent false sharing between hot
// atomic fields, the same trick [code.hybscloud.com/lfq] uses for its
// ring buffers.
type pad [64]byte

// padShort pads out the remainder of a cache line after an 8-byte
// field.
type padShort [64 - 8]byte

// roundToPow2 rounds n up to the next power of 2.
func roundToPow2(n int) int {
	if n < 2 {
		return 2
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
