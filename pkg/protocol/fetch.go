package protocol

import (
	"bytes"
	"fmt"
)

// Sideband multiplexing bands used in the fetch response's "packfile"
// section, per the v2 protocol's sideband-64k framing.
const (
	bandPackData byte = 1
	bandProgress byte = 2
	bandError    byte = 3
)

// FetchMode selects which argument set a fetch command request uses.
type FetchMode int

const (
	FetchClone FetchMode = iota
	FetchPull
	FetchRepair
)

// BuildFetchArgs constructs the capability/argument lines (without the
// command, delim, done, or flush framing, which Client.Fetch supplies)
// for the requested fetch variant.
func BuildFetchArgs(mode FetchMode, want, have string, repairWants []string) ([]string, error) {
	switch mode {
	case FetchClone:
		return []string{
			"no-progress",
			"ofs-delta",
			"shallow " + want,
			"want " + want,
		}, nil
	case FetchPull:
		return []string{
			"thin-pack",
			"no-progress",
			"ofs-delta",
			"shallow " + want,
			"shallow " + have,
			"deepen 1",
			"want " + want,
			"have " + have,
		}, nil
	case FetchRepair:
		if len(repairWants) == 0 {
			return nil, nil
		}
		args := []string{"thin-pack", "no-progress", "ofs-delta"}
		for _, w := range repairWants {
			args = append(args, "want "+w)
		}
		args = append(args, "deepen 1")
		return args, nil
	default:
		return nil, fmt.Errorf("unknown fetch mode %d", mode)
	}
}

// MaxRepairWantBytes bounds the size of a repair fetch's want block, per
// the tool's refusal to repair an implausibly large number of paths in
// one request.
const MaxRepairWantBytes = 3200 * 1024

// RepairWantSize estimates the wire size of the want lines a repair
// fetch would send, used to enforce MaxRepairWantBytes before issuing
// the request.
func RepairWantSize(repairWants []string) int {
	n := 0
	for _, w := range repairWants {
		n += len("want ") + len(w) + 1 + 4 // +1 newline, +4 pkt-line length prefix
	}
	return n
}

// ExtractPack locates the sideband-framed "packfile" section within a
// fetch response body, demultiplexes band 1 (pack data) into a single
// contiguous buffer, and returns it. Band 2 (progress text) is discarded;
// band 3 (error text) aborts extraction.
//
// The search anchors on the literal "PACK" magic: the five bytes
// preceding it in the body are the containing pkt-line's four-byte length
// prefix and its band byte, which is where sideband decoding must start to avoid
// having to parse the preceding "acknowledgments"/"packfile" section
// headers, which are not sideband-framed.
func ExtractPack(body []byte) ([]byte, error) {
	idx := bytes.Index(body, []byte("PACK"))
	if idx < 0 {
		return nil, fmt.Errorf("no packfile data found in fetch response")
	}
	start := idx - 5
	if start < 0 {
		return nil, fmt.Errorf("malformed sideband framing around packfile magic")
	}

	sc := NewScanner(body[start:])
	var out bytes.Buffer
	for {
		line, err := sc.Next()
		if err != nil {
			break
		}
		if line.Flush || line.Delim {
			continue
		}
		if len(line.Data) == 0 {
			continue
		}
		band := line.Data[0]
		payload := line.Data[1:]
		switch band {
		case bandPackData:
			out.Write(payload)
		case bandProgress:
			// discarded; a verbose mode could surface this to the user.
		case bandError:
			return nil, fmt.Errorf("remote error: %s", string(payload))
		default:
			return nil, fmt.Errorf("unknown sideband %d", band)
		}
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("no packfile bytes extracted")
	}
	return out.Bytes(), nil
}
