package main

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
)

func splitHostPort(addr string) (host, port string, err error) {
	host, port, err = net.SplitHostPort(addr)
	if err != nil {
		return "", "", errors.Wrap(err, "split host:port")
	}
	return host, port, nil
}

func parseIPv4(host string) ([4]byte, error) {
	var out [4]byte
	ip := net.ParseIP(host)
	if ip == nil {
		if host == "" {
			return out, nil
		}
		return out, errors.Errorf("invalid host %q", host)
	}
	v4 := ip.To4()
	if v4 == nil {
		return out, errors.Errorf("not an IPv4 address: %q", host)
	}
	copy(out[:], v4)
	return out, nil
}

func atoiPort(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid port %q", s)
	}
	return n, nil
}
