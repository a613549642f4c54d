// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package spool

import "math"

func floatBits(v float64) uint64 { return math.Float64bits(v) }

func floatFromBits(b uint64) float64 { return math.Float64frombits(b) }
