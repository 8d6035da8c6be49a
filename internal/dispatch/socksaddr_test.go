package dispatch

import (
	"encoding/binary"
	"net"
	"testing"
)

func TestParseSocksAddrAt_IPv4(t *testing.T) {
	b := []byte{0x01, 1, 2, 3, 4, 0, 53}
	h, p, off, err := parseSocksAddrAt(b, 0)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if h != "1.2.3.4" || p != 53 {
		t.Fatalf("got %q:%d", h, p)
	}
	if off != len(b) {
		t.Fatalf("off=%d want %d", off, len(b))
	}
}

func TestParseSocksAddrAt_Domain(t *testing.T) {
	d := "example.com"
	b := append([]byte{0x03, byte(len(d))}, []byte(d)...)
	pb := make([]byte, 2)
	binary.BigEndian.PutUint16(pb, 443)
	b = append(b, pb...)

	h, p, off, err := parseSocksAddrAt(b, 0)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if h != d || p != 443 {
		t.Fatalf("got %q:%d", h, p)
	}
	if off != len(b) {
		t.Fatalf("off=%d want %d", off, len(b))
	}
}

func TestParseSocksAddrAt_IPv6(t *testing.T) {
	ip := net.ParseIP("2001:db8::1").To16()
	if ip == nil {
		t.Fatal("bad test ip")
	}
	b := append([]byte{0x04}, ip...)
	pb := make([]byte, 2)
	binary.BigEndian.PutUint16(pb, 8080)
	b = append(b, pb...)

	h, p, off, err := parseSocksAddrAt(b, 0)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if h != "2001:db8::1" || p != 8080 {
		t.Fatalf("got %q:%d", h, p)
	}
	if off != len(b) {
		t.Fatalf("off=%d want %d", off, len(b))
	}
}

func TestParseSocksAddrAt_Errors(t *testing.T) {
	if _, _, _, err := parseSocksAddrAt([]byte{}, 0); err == nil {
		t.Fatal("expected error")
	}
	if _, _, _, err := parseSocksAddrAt([]byte{0x09, 0, 0}, 0); err == nil {
		t.Fatal("expected error")
	}
}

func TestEncodeSocksAddr_RoundTrip(t *testing.T) {
	cases := []struct {
		host string
		port uint16
	}{
		{"1.2.3.4", 53},
		{"2001:db8::1", 8080},
		{"example.com", 443},
	}
	for _, c := range cases {
		b, err := encodeSocksAddr(c.host, c.port)
		if err != nil {
			t.Fatalf("encode %s: %v", c.host, err)
		}
		h, p, off, err := parseSocksAddrAt(b, 0)
		if err != nil {
			t.Fatalf("decode %s: %v", c.host, err)
		}
		if h != c.host || p != c.port {
			t.Fatalf("round trip %s:%d got %s:%d", c.host, c.port, h, p)
		}
		if off != len(b) {
			t.Fatalf("off=%d want %d", off, len(b))
		}
	}
}
