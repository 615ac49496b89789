// Package signature implements the gateway's keyed digest over a
// canonicalized parameter set. The canonical form must be reproduced
// bit-for-bit or the integration breaks silently: drop the sign field and
// empty values, sort keys lexicographically, join as k=v pairs with '&',
// append '&key=SECRET', MD5, uppercase hex.
package signature

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

const signField = "sign"

// Params is a flat parameter set as it appears on the wire. Callers are
// responsible for rendering numeric values the same way the gateway does
// (plain base-10, no exponent).
type Params map[string]string

// FromValues flattens form-encoded values into Params, keeping the first
// value per key.
func FromValues(v url.Values) Params {
	p := make(Params, len(v))
	for k := range v {
		p[k] = v.Get(k)
	}
	return p
}

// Sign computes the uppercase hex digest for the given parameters and
// merchant secret.
func Sign(params Params, secretKey string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if strings.EqualFold(k, signField) {
			continue
		}
		if params[k] == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	b.WriteString("&key=")
	b.WriteString(secretKey)

	sum := md5.Sum([]byte(b.String()))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Verify recomputes the digest and compares it case-insensitively against
// the sign field. It fails closed when the field is absent.
func Verify(params Params, secretKey string) bool {
	provided := ""
	for k, v := range params {
		if strings.EqualFold(k, signField) {
			provided = v
			break
		}
	}
	if provided == "" {
		return false
	}
	return strings.EqualFold(Sign(params, secretKey), provided)
}
