// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package spool

import "github.com/shirou/gopsutil/v3/disk"

// statFSBytes reports the total and free byte capacity of the filesystem
// backing dir, used to compute the default spool cap (§4.1).
func statFSBytes(dir string) (total, free uint64, err error) {
	usage, err := disk.Usage(dir)
	if err != nil {
		return 0, 0, err
	}
	return usage.Total, usage.Free, nil
}
