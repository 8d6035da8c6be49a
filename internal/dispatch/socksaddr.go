package dispatch

import (
	"encoding/binary"
	"errors"
	"net"
)

// parseSocksAddrAt parses a SOCKS/Shadowsocks address starting at b[off]
// (the ATYP byte). It returns host, numeric port, and the offset of the
// first byte after the port field.
func parseSocksAddrAt(b []byte, off int) (host string, port uint16, newOff int, err error) {
	if len(b) < off+1 {
		return "", 0, 0, errors.New("dispatch: short address header")
	}
	atyp := b[off]
	off++
	switch atyp {
	case 0x01: // IPv4
		if len(b) < off+4+2 {
			return "", 0, 0, errors.New("dispatch: short ipv4 address")
		}
		host = net.IP(b[off : off+4]).String()
		off += 4
	case 0x03: // domain
		if len(b) < off+1 {
			return "", 0, 0, errors.New("dispatch: short domain length")
		}
		l := int(b[off])
		off++
		if len(b) < off+l+2 {
			return "", 0, 0, errors.New("dispatch: short domain")
		}
		host = string(b[off : off+l])
		off += l
	case 0x04: // IPv6
		if len(b) < off+16+2 {
			return "", 0, 0, errors.New("dispatch: short ipv6 address")
		}
		host = net.IP(b[off : off+16]).String()
		off += 16
	default:
		return "", 0, 0, errors.New("dispatch: unsupported address type")
	}
	port = binary.BigEndian.Uint16(b[off : off+2])
	off += 2
	return host, port, off, nil
}

// parseSocksAddrFromPlain parses Shadowsocks UDP plaintext framing,
// [ATYP][ADDR][PORT][DATA], returning the address and the offset of DATA.
func parseSocksAddrFromPlain(plain []byte) (host string, port uint16, off int, err error) {
	return parseSocksAddrAt(plain, 0)
}

// encodeSocksAddr renders host:port as a SOCKS/Shadowsocks address header.
// It always prefers the domain encoding for non-IP hosts and the matching
// fixed-width encoding for IPv4/IPv6 literals, matching what
// github.com/shadowsocks/go-shadowsocks2/socks.ParseAddr produces.
func encodeSocksAddr(host string, port uint16) ([]byte, error) {
	var b []byte
	if ip := net.ParseIP(host); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			b = append(b, 0x01)
			b = append(b, ip4...)
		} else {
			b = append(b, 0x04)
			b = append(b, ip.To16()...)
		}
	} else {
		if len(host) > 255 {
			return nil, errors.New("dispatch: domain name too long")
		}
		b = append(b, 0x03, byte(len(host)))
		b = append(b, host...)
	}
	pb := make([]byte, 2)
	binary.BigEndian.PutUint16(pb, port)
	return append(b, pb...), nil
}
