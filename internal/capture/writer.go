package capture

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
)

// Writer writes a pcap stream of usbmon records.
type Writer struct {
	w      *pcapgo.Writer
	buf    *bufio.Writer
	closer io.Closer
}

// Create opens path for writing; "-" or "" writes stdout.
func Create(path string, snaplen uint32, nanos bool) (*Writer, error) {
	var wc io.WriteCloser
	if path == "" || path == "-" {
		wc = nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create capture %s: %w", path, err)
		}
		wc = f
	}

	w, err := NewWriter(wc, snaplen, nanos)
	if err != nil {
		wc.Close()
		return nil, err
	}
	w.closer = wc
	return w, nil
}

// NewWriter writes the pcap file header and returns a Writer for the records.
func NewWriter(w io.Writer, snaplen uint32, nanos bool) (*Writer, error) {
	buf := bufio.NewWriter(w)
	var pw *pcapgo.Writer
	if nanos {
		pw = pcapgo.NewWriterNanos(buf)
	} else {
		pw = pcapgo.NewWriter(buf)
	}
	if err := pw.WriteFileHeader(snaplen, LinkTypeUSBLinuxMmapped); err != nil {
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	return &Writer{w: pw, buf: buf}, nil
}

// WritePacket appends frame. The capture length is taken from the frame and
// the original length is raised when the frame grew past it.
func (w *Writer) WritePacket(ci gopacket.CaptureInfo, frame []byte) error {
	ci.CaptureLength = len(frame)
	if ci.Length < ci.CaptureLength {
		ci.Length = ci.CaptureLength
	}
	if err := w.w.WritePacket(ci, frame); err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}
	return nil
}

func (w *Writer) Flush() error {
	return w.buf.Flush()
}

// Close flushes buffered records and closes the underlying file.
func (w *Writer) Close() error {
	err := w.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
		w.closer = nil
	}
	return err
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
