package cache

import (
	"crypto/sha1"
	"encoding/hex"
)

// memcached caps keys at 250 bytes.
const maxMemcachedKey = 250

// encodeKey maps arbitrary location text onto a memcached-safe key. Short
// printable keys stay readable; anything else is hashed.
func encodeKey(k string) string {
	if len(k)+len(keyPrefix) <= maxMemcachedKey && safeKey(k) {
		return k
	}
	sum := sha1.Sum([]byte(k))
	return "h:" + hex.EncodeToString(sum[:])
}

func safeKey(k string) bool {
	for i := 0; i < len(k); i++ {
		if k[i] <= ' ' || k[i] == 0x7f {
			return false
		}
	}
	return true
}
