// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package lake

import "time"

func timeFromUnixMs(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
