package core

import "encoding/binary"

// Decode unpacks a usbmon header and its captured payload. The header must be
// at least HeaderLen bytes; anything past HeaderLen is ignored. The payload
// length must match the header's len_cap. The payload is copied.
func Decode(header, payload []byte) (*Record, error) {
	if len(header) < HeaderLen {
		return nil, fieldErr(ErrMalformedRecord, "header", 0, "got %d bytes, want %d", len(header), HeaderLen)
	}
	header = header[:HeaderLen]

	le := binary.LittleEndian
	r := &Record{
		URB:        le.Uint64(header[0:8]),
		EventType:  header[8],
		XferType:   XferType(header[9]),
		EpNum:      header[10],
		DevNum:     header[11],
		BusNum:     le.Uint16(header[12:14]),
		FlagSetup:  header[14],
		FlagData:   header[15],
		TsSec:      int64(le.Uint64(header[16:24])),
		TsUsec:     int32(le.Uint32(header[24:28])),
		Status:     int32(le.Uint32(header[28:32])),
		length:     le.Uint32(header[32:36]),
		lenCap:     le.Uint32(header[36:40]),
		interval:   int32(le.Uint32(header[48:52])),
		startFrame: int32(le.Uint32(header[52:56])),
		XferFlags:  le.Uint32(header[56:60]),
		NDesc:      le.Uint32(header[60:64]),
	}
	copy(r.union[:], header[40:48])

	if uint64(len(payload)) != uint64(r.lenCap) {
		return nil, fieldErr(ErrMalformedRecord, "len_cap", r.XferType,
			"header declares %d captured bytes, payload has %d", r.lenCap, len(payload))
	}
	r.data = append(make([]byte, 0, len(payload)), payload...)
	return r, nil
}

// SplitFrame separates a captured frame into header and payload.
func SplitFrame(frame []byte) (header, payload []byte, err error) {
	if len(frame) < HeaderLen {
		return nil, nil, fieldErr(ErrMalformedRecord, "header", 0, "frame of %d bytes is shorter than %d", len(frame), HeaderLen)
	}
	return frame[:HeaderLen], frame[HeaderLen:], nil
}

// DecodeFrame decodes a whole captured frame (header followed by payload).
func DecodeFrame(frame []byte) (*Record, error) {
	header, payload, err := SplitFrame(frame)
	if err != nil {
		return nil, err
	}
	return Decode(header, payload)
}

// Encode serializes r back into a frame that DecodeFrame accepts.
func Encode(r *Record) ([]byte, error) {
	if err := r.checkWire(); err != nil {
		return nil, err
	}
	h := r.header()
	out := make([]byte, HeaderLen+len(r.data))
	copy(out, h[:])
	copy(out[HeaderLen:], r.data)
	return out, nil
}

// checkWire re-validates everything that must hold for the header to
// describe the payload it is emitted with.
func (r *Record) checkWire() error {
	if uint64(len(r.data)) > uint64(^uint32(0)) {
		return fieldErr(ErrEncode, "data", r.XferType, "%d bytes does not fit len_cap", len(r.data))
	}
	if uint64(r.lenCap) != uint64(len(r.data)) {
		return fieldErr(ErrEncode, "len_cap", r.XferType, "%d does not match payload of %d bytes", r.lenCap, len(r.data))
	}
	return nil
}

func (r *Record) header() [HeaderLen]byte {
	var h [HeaderLen]byte
	le := binary.LittleEndian
	le.PutUint64(h[0:8], r.URB)
	h[8] = r.EventType
	h[9] = byte(r.XferType)
	h[10] = r.EpNum
	h[11] = r.DevNum
	le.PutUint16(h[12:14], r.BusNum)
	h[14] = r.FlagSetup
	h[15] = r.FlagData
	le.PutUint64(h[16:24], uint64(r.TsSec))
	le.PutUint32(h[24:28], uint32(r.TsUsec))
	le.PutUint32(h[28:32], uint32(r.Status))
	le.PutUint32(h[32:36], r.length)
	le.PutUint32(h[36:40], r.lenCap)
	copy(h[40:48], r.union[:])
	le.PutUint32(h[48:52], uint32(r.interval))
	le.PutUint32(h[52:56], uint32(r.startFrame))
	le.PutUint32(h[56:60], r.XferFlags)
	le.PutUint32(h[60:64], r.NDesc)
	return h
}
