// Package capture reads and writes usbmon capture streams.
package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// LinkTypeUSBLinuxMmapped is DLT_USB_LINUX_MMAPPED: usbmon records with the
// 64-byte header.
const LinkTypeUSBLinuxMmapped = layers.LinkType(220)

const pcapngMagic = 0x0A0D0D0A

var ErrUnsupportedLinkType = errors.New("usbrevue: unsupported link type")

// Source yields captured frames until io.EOF.
type Source interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Sink accepts frames for an output capture stream.
type Sink interface {
	WritePacket(ci gopacket.CaptureInfo, frame []byte) error
}

// Reader reads a pcap or pcapng stream of usbmon records.
type Reader struct {
	src     Source
	closer  io.Closer
	format  string
	snaplen uint32
}

// Open opens path for reading; "-" or "" reads stdin.
func Open(path string) (*Reader, error) {
	var rc io.ReadCloser
	if path == "" || path == "-" {
		rc = io.NopCloser(os.Stdin)
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open capture %s: %w", path, err)
		}
		rc = f
	}

	r, err := NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, err
	}
	r.closer = rc
	return r, nil
}

// NewReader detects pcap or pcapng from the stream's magic number and checks
// that it carries usbmon records.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture header: %w", err)
	}

	var rd *Reader
	if binary.LittleEndian.Uint32(magic) == pcapngMagic {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to read pcapng header: %w", err)
		}
		rd = &Reader{src: ng, format: "pcapng"}
	} else {
		p, err := pcapgo.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to read pcap header: %w", err)
		}
		rd = &Reader{src: p, format: "pcap", snaplen: p.Snaplen()}
	}

	if lt := rd.src.LinkType(); lt != LinkTypeUSBLinuxMmapped {
		return nil, fmt.Errorf("%w: %s (%d), want usbmon mmapped (%d)",
			ErrUnsupportedLinkType, lt, uint32(lt), uint32(LinkTypeUSBLinuxMmapped))
	}
	return rd, nil
}

// ReadPacketData returns the next frame, or io.EOF at the end of the stream.
func (r *Reader) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := r.src.ReadPacketData()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, gopacket.CaptureInfo{}, io.EOF
		}
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("failed to read packet: %w", err)
	}
	return data, ci, nil
}

func (r *Reader) LinkType() layers.LinkType { return r.src.LinkType() }

// Format returns "pcap" or "pcapng".
func (r *Reader) Format() string { return r.format }

// Snaplen returns the input snapshot length, or 0 when the format does not
// carry one.
func (r *Reader) Snaplen() uint32 { return r.snaplen }

func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}
