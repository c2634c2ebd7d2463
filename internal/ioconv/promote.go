// Copyright 2025 Tom Barlow
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

// Package ioconv converts between the OGC API - Processes JSON shape of a
// process submission or result and the normalized pkg/iovalue
// representation, applying the AP's declared input types, enum symbol
// constraints, and literal value promotion. It does not read or write WPS
// XML, and it does not check numeric range constraints.
package ioconv

import (
	"fmt"
	"strconv"

	"github.com/crim-ca/weaver/pkg/ogcerrors"
)

// promoteLiteral coerces raw into declaredType when raw arrived as a
// string (the common shape for form-encoded or loosely-typed JSON
// submissions) and raw otherwise already matches. Values that cannot be
// parsed as declaredType fail InvalidParameterValue.
func promoteLiteral(field, declaredType string, raw any) (any, error) {
	switch declaredType {
	case "integer":
		switch v := raw.(type) {
		case int:
			return v, nil
		case int64:
			return v, nil
		case float64:
			if v == float64(int64(v)) {
				return int64(v), nil
			}
			return nil, invalidParam(field, fmt.Sprintf("%v is not an integer", raw))
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, invalidParam(field, fmt.Sprintf("%q is not a valid integer", v))
			}
			return n, nil
		default:
			return nil, invalidParam(field, fmt.Sprintf("%v is not an integer", raw))
		}
	case "float":
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, invalidParam(field, fmt.Sprintf("%q is not a valid float", v))
			}
			return f, nil
		default:
			return nil, invalidParam(field, fmt.Sprintf("%v is not a float", raw))
		}
	case "boolean":
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, invalidParam(field, fmt.Sprintf("%q is not a valid boolean", v))
			}
			return b, nil
		default:
			return nil, invalidParam(field, fmt.Sprintf("%v is not a boolean", raw))
		}
	default: // "string", "enum"
		switch v := raw.(type) {
		case string:
			return v, nil
		default:
			return fmt.Sprint(v), nil
		}
	}
}

func invalidParam(field, reason string) error {
	return &ogcerrors.ValidationError{Field: field, Message: reason}
}
