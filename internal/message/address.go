package message

import (
	"net/mail"
	"strings"

	"github.com/brandon/mailsync/pkg/types"
)

// NewAddress builds the normalized Address for a raw display name and
// address. The address is lowercased per RFC 5321 case-folding; the
// name is trimmed and quoted when it contains a comma.
func NewAddress(name, addr string) types.Address {
	name = strings.TrimSpace(name)
	addr = strings.ToLower(strings.TrimSpace(addr))

	out := types.Address{Name: name, Address: addr}
	switch {
	case name == "":
		out.Formatted = addr
	case strings.Contains(name, ","):
		out.Formatted = `"` + name + `" <` + addr + `>`
	default:
		out.Formatted = name + " <" + addr + ">"
	}
	return out
}

// addressList converts parsed mail addresses into normalized Addresses
func addressList(addrs []*mail.Address) []types.Address {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]types.Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, NewAddress(a.Name, a.Address))
	}
	return out
}

// AddressStrings extracts the bare lowercase addresses of a list
func AddressStrings(addrs []types.Address) []string {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Address)
	}
	return out
}
