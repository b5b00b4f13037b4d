// Copyright (C) 2024 The BirdPlan Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package irr

// IsReservedASN reports ASNs which must never appear in a filter.
func IsReservedASN(asn uint32) bool {
	switch asn {
	case 0, 112, 23456, 65535, 4294967295:
		return true
	}
	return false
}

// IsPrivateASN covers RFC 6996 private use ranges.
func IsPrivateASN(asn uint32) bool {
	return (asn >= 64512 && asn <= 65534) || (asn >= 4200000000 && asn <= 4294967294)
}

// IsDocumentationASN covers RFC 5398 documentation ranges.
func IsDocumentationASN(asn uint32) bool {
	return (asn >= 64496 && asn <= 64511) || (asn >= 65536 && asn <= 65551)
}
