// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package lake

import "errors"

var errLakeRootRequired = errors.New("lake: LakeRoot is required")
