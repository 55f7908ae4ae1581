package netutil

import (
	"fmt"
	"net"
)

// MaxHosts caps how many addresses a single range may expand to.
const MaxHosts = 1 << 16

// ExpandHosts returns the host addresses in a CIDR range. Network and
// broadcast addresses are skipped for prefixes shorter than /31. A bare IP
// expands to itself.
func ExpandHosts(cidr string) ([]string, error) {
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		// Maybe it's a single IP, not a CIDR.
		ip = net.ParseIP(cidr)
		if ip == nil {
			return nil, fmt.Errorf("invalid CIDR or IP: %q", cidr)
		}
		return []string{ip.String()}, nil
	}

	ones, bits := ipnet.Mask.Size()
	if bits-ones > 16 {
		return nil, fmt.Errorf("range %s is too large (more than %d hosts)", cidr, MaxHosts)
	}

	bcast := broadcastAddr(ipnet)
	var hosts []string
	for ip := ip.Mask(ipnet.Mask); ipnet.Contains(ip); inc(ip) {
		if bits-ones > 1 && (ip.Equal(ipnet.IP) || ip.Equal(bcast)) {
			continue
		}
		hosts = append(hosts, ip.String())
	}
	return hosts, nil
}

func inc(ip net.IP) {
	for j := len(ip) - 1; j >= 0; j-- {
		ip[j]++
		if ip[j] > 0 {
			break
		}
	}
}

func broadcastAddr(n *net.IPNet) net.IP {
	ip := make(net.IP, len(n.IP))
	for i := range ip {
		ip[i] = n.IP[i] | ^n.Mask[i]
	}
	return ip
}
