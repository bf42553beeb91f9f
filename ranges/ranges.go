// Package ranges expands CIDR notation into individual candidate addresses.
package ranges

import (
	"context"
	"math/big"
	"net/netip"
	"strings"

	"go.ntppool.org/common/logger"
	"go4.org/netipx"
)

// Parse parses one configured range. A bare address is a single-host range.
func Parse(s string) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "/") {
		ip, err := netip.ParseAddr(s)
		if err != nil {
			return netip.Prefix{}, err
		}
		ip = ip.WithZone("")
		return netip.PrefixFrom(ip, ip.BitLen()), nil
	}
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return p.Masked(), nil
}

// Expand returns every address covered by the given ranges. Malformed
// entries are logged and skipped; overlapping ranges contribute each
// address once. At most limit addresses are returned (limit <= 0 is
// unlimited).
func Expand(ctx context.Context, cidrs []string, limit int) []netip.Addr {
	log := logger.FromContext(ctx)

	var b netipx.IPSetBuilder
	for _, s := range cidrs {
		p, err := Parse(s)
		if err != nil {
			log.WarnContext(ctx, "invalid cidr", "cidr", s, "err", err)
			continue
		}
		b.AddPrefix(p)
	}

	set, err := b.IPSet()
	if err != nil {
		// only possible with invalid prefixes, which Parse rejects
		log.ErrorContext(ctx, "building address set", "err", err)
		return nil
	}

	addrs := []netip.Addr{}
	for _, r := range set.Ranges() {
		for ip := r.From(); ip.IsValid(); ip = ip.Next() {
			if limit > 0 && len(addrs) >= limit {
				log.WarnContext(ctx, "address limit reached, skipping remaining addresses",
					"limit", limit, "skipped_from", ip.String())
				return addrs
			}
			addrs = append(addrs, ip)
			if ip == r.To() {
				break
			}
		}
	}

	return addrs
}

// Count returns the number of addresses the valid ranges cover, counting
// overlaps once per range. Malformed entries count as zero.
func Count(cidrs []string) *big.Int {
	total := new(big.Int)
	for _, s := range cidrs {
		p, err := Parse(s)
		if err != nil {
			continue
		}
		n := new(big.Int).Lsh(big.NewInt(1), uint(p.Addr().BitLen()-p.Bits()))
		total.Add(total, n)
	}
	return total
}
