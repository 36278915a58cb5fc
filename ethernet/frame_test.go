package ethernet

import (
	"testing"

	"github.com/vnet-go/tcpstack/netstack"
)

func TestNewFrameShort(t *testing.T) {
	_, err := NewFrame(make([]byte, sizeHeader-1))
	if err != errShortFrame {
		t.Fatalf("want errShortFrame, got %v", err)
	}
}

func TestFrameHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, sizeHeader+4)
	frm, err := NewFrame(buf)
	if err != nil {
		t.Fatal(err)
	}
	dst := Addr{1, 2, 3, 4, 5, 6}
	src := Addr{6, 5, 4, 3, 2, 1}
	frm.SetDestination(dst)
	frm.SetSource(src)
	frm.SetEtherType(netstack.EtherTypeIPv4)

	if frm.Destination() != dst {
		t.Errorf("destination = %v, want %v", frm.Destination(), dst)
	}
	if frm.Source() != src {
		t.Errorf("source = %v, want %v", frm.Source(), src)
	}
	if frm.EtherType() != netstack.EtherTypeIPv4 {
		t.Errorf("ethertype = %v, want %v", frm.EtherType(), netstack.EtherTypeIPv4)
	}
}

func TestFramePayload(t *testing.T) {
	buf := make([]byte, sizeHeader+3)
	frm, err := NewFrame(buf)
	if err != nil {
		t.Fatal(err)
	}
	copy(frm.Payload(), []byte{0xaa, 0xbb, 0xcc})
	if got := frm.RawData()[sizeHeader:]; got[0] != 0xaa || got[1] != 0xbb || got[2] != 0xcc {
		t.Errorf("payload not written through frame view: %v", got)
	}
}

func TestBroadcastAddr(t *testing.T) {
	want := Addr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	if Broadcast != want {
		t.Errorf("Broadcast = %v, want %v", Broadcast, want)
	}
}
