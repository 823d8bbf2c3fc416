package object

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// PackEntry represents one object entry in a pack stream, in the wire's
// original, unresolved form: a delta entry still carries its delta
// instruction bytes in Data, not a reconstructed object.
type PackEntry struct {
	Offset       int // byte offset of this entry's header within the pack payload
	Type         PackObjectType
	Size         uint64 // declared inflated size (of the delta or object payload)
	Data         []byte // inflated payload
	BaseDistance uint64 // valid only when Type == PackOfsDelta
	BaseRef      Hash   // valid only when Type == PackRefDelta
}

// PackFile is the decoded content of a full pack stream, prior to delta
// resolution.
type PackFile struct {
	Header   PackHeader
	Entries  []PackEntry
	Checksum Hash
}

// ReadPack parses a full pack file byte slice, verifies the trailing
// SHA-1 checksum, and returns the raw (unresolved) entries in wire order.
// Delta entries are left as-is; resolving them into full objects is the
// job of the delta resolver.
func ReadPack(data []byte) (*PackFile, error) {
	if len(data) < packHeaderSize+sha1.Size {
		return nil, fmt.Errorf("pack too short: %d", len(data))
	}

	payload := data[:len(data)-sha1.Size]
	trailer := data[len(data)-sha1.Size:]

	sum := sha1.Sum(payload)
	if !bytes.Equal(sum[:], trailer) {
		return nil, fmt.Errorf("pack checksum mismatch")
	}

	header, err := UnmarshalPackHeader(payload[:packHeaderSize])
	if err != nil {
		return nil, err
	}

	offset := packHeaderSize
	entries := make([]PackEntry, 0, header.NumObjects)
	for i := uint32(0); i < header.NumObjects; i++ {
		entryStart := offset
		objType, size, n, err := decodePackEntryHeaderStrict(payload[offset:])
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		offset += n

		entry := PackEntry{Offset: entryStart, Type: objType, Size: size}

		switch objType {
		case PackOfsDelta:
			dist, consumed, err := decodeOfsDeltaDistance(payload[offset:])
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			entry.BaseDistance = dist
			offset += consumed
		case PackRefDelta:
			if offset+20 > len(payload) {
				return nil, fmt.Errorf("entry %d: truncated ref-delta base", i)
			}
			h, err := HashBinary(payload[offset : offset+20])
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			entry.BaseRef = h
			offset += 20
		}

		if offset >= len(payload) {
			return nil, fmt.Errorf("entry %d: missing compressed payload", i)
		}

		sub := bytes.NewReader(payload[offset:])
		zr, err := zlib.NewReader(sub)
		if err != nil {
			return nil, fmt.Errorf("entry %d: zlib reader: %w", i, err)
		}
		raw, err := io.ReadAll(zr)
		if err != nil {
			_ = zr.Close()
			return nil, fmt.Errorf("entry %d: decompress: %w", i, err)
		}
		if err := zr.Close(); err != nil {
			return nil, fmt.Errorf("entry %d: close zlib stream: %w", i, err)
		}
		if uint64(len(raw)) < size {
			return nil, fmt.Errorf("entry %d: size mismatch header=%d decoded=%d", i, size, len(raw))
		}

		consumed := len(payload[offset:]) - sub.Len()
		offset += consumed

		entry.Data = raw
		entries = append(entries, entry)
	}

	if offset != len(payload) {
		return nil, fmt.Errorf("pack has trailing undecoded bytes: %d", len(payload)-offset)
	}

	return &PackFile{
		Header:   *header,
		Entries:  entries,
		Checksum: Hash(hex.EncodeToString(trailer)),
	}, nil
}

// ReadPackFromReader reads a complete pack stream from r and delegates to
// ReadPack for decode and verification.
func ReadPackFromReader(r io.Reader) (*PackFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pack stream: %w", err)
	}
	return ReadPack(data)
}

func decodePackEntryHeaderStrict(data []byte) (PackObjectType, uint64, int, error) {
	if len(data) == 0 {
		return 0, 0, 0, fmt.Errorf("entry header truncated")
	}

	b := data[0]
	objType := PackObjectType((b >> 4) & 0x7)
	size := uint64(b & 0x0f)
	shift := uint(4)
	consumed := 1

	for b&0x80 != 0 {
		if consumed >= len(data) {
			return 0, 0, 0, fmt.Errorf("entry header truncated")
		}
		b = data[consumed]
		size |= uint64(b&0x7f) << shift
		shift += 7
		consumed++
	}

	return objType, size, consumed, nil
}

func packTypeToObjectType(t PackObjectType) (ObjectType, error) {
	switch t {
	case PackCommit:
		return TypeCommit, nil
	case PackTree:
		return TypeTree, nil
	case PackBlob:
		return TypeBlob, nil
	case PackTag:
		return TypeTag, nil
	default:
		return "", fmt.Errorf("pack object type %d has no base object-type mapping", t)
	}
}
