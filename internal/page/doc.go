// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package page is a process-wide, thread-safe source of fixed-size
// aligned memory pages for the heterogeneous queues in
// [code.hybscloud.com/density].
//
// A [Manager] caches freed pages for reuse and defers recycling of
// pages still referenced by other threads using hazard pointers. It is
// an explicit, injectable service: callers construct one (or share the
// process-wide [Default]) and pass it to a queue builder, rather than
// reaching for a hidden singleton.
package page
