// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package lake

import "github.com/cespare/xxhash/v2"

// shardFor computes the non-cryptographic stable shard a sensor_id maps to,
// per SPEC_FULL §3's "shard = stable_hash(sensor_id) mod N". xxhash is
// chosen over the sha256 used for node-health sensor ids (internal/ingest)
// because this runs on every exported row in the hot replication path,
// where a fast non-cryptographic hash is the right tool.
func shardFor(sensorID string, shardCount uint64) uint64 {
	return xxhash.Sum64String(sensorID) % shardCount
}
