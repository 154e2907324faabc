// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import "strings"

// matchPattern reports whether an event type matches a subscription
// pattern. Supported forms:
//   - "proxy.*" matches "proxy.launched", "proxy.exited", etc.
//   - "*.launched" matches any type with that suffix
//   - "*" matches everything
//   - anything else is an exact match
func matchPattern(eventType, pattern string) bool {
	if pattern == "" || eventType == "" {
		return false
	}
	if pattern == "*" || pattern == eventType {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return strings.HasPrefix(eventType, prefix+".")
	}
	if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
		return strings.HasSuffix(eventType, "."+suffix)
	}
	return false
}
