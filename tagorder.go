// Copyright 2023 CUE Labs AG
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ociregistry

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CompareTags orders two tag names the way the tag-listing endpoint
// presents them: descending by semantic version when both tags parse
// as a version of the form "<maj>.<min>.<patch>[-suffix]", falling
// back to descending lexicographic order otherwise. It returns a
// negative number if a should be listed before b, zero if they're
// equal, and a positive number if a should be listed after b.
func CompareTags(a, b string) int {
	va, aok := semver.NewVersion(a)
	vb, bok := semver.NewVersion(b)
	if aok == nil && bok == nil {
		return -va.Compare(vb)
	}
	return -strings.Compare(a, b)
}
