package woocommerce

import (
	"fmt"
	"strconv"
	"strings"
)

// IdentityDelimiter separates the store domain from the remote id in a
// composite identity. Tilde never appears in hostnames or numeric ids, so
// parsing stays unambiguous.
const IdentityDelimiter = "~"

// Identity builds the composite "{domain}~{remote-id}" key for a remote record
func Identity(domain string, remoteID int64) string {
	return domain + IdentityDelimiter + strconv.FormatInt(remoteID, 10)
}

// ParseIdentity splits a composite identity back into domain and remote id
func ParseIdentity(identity string) (domain string, remoteID int64, err error) {
	idx := strings.LastIndex(identity, IdentityDelimiter)
	if idx <= 0 || idx == len(identity)-1 {
		return "", 0, fmt.Errorf("invalid identity %q", identity)
	}

	domain = identity[:idx]
	remoteID, err = strconv.ParseInt(identity[idx+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid identity %q: remote id is not numeric", identity)
	}

	return domain, remoteID, nil
}

// IdentityDomain returns only the domain part of a composite identity
func IdentityDomain(identity string) (string, error) {
	domain, _, err := ParseIdentity(identity)
	return domain, err
}
