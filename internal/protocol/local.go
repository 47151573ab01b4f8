package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Local protocol framing. A request is a JSON array wrapped in textual
// markers and a NUL terminator:
//
//	ISTART[<code>,<code>,<data>]IEND<NUL>
//
// where <data> is the empty string for parameterless commands, or a
// nested array whose first element repeats the command code. A response
// uses the same markers around either nothing (bare acknowledgement) or
// a two element array [code, payload].
const (
	localStart = "ISTART"
	localEnd   = "IEND"
)

var localTerminator = []byte{0}

// EncodeLocalRequest builds the datagram for a local command. args is
// nil for parameterless commands; otherwise it is marshaled as the
// argument list of the nested [code, args] element.
func EncodeLocalRequest(code int, args interface{}) ([]byte, error) {
	if code <= 0 {
		return nil, fmt.Errorf("%w: command code %d", ErrEncoding, code)
	}
	var data interface{} = ""
	if args != nil {
		data = []interface{}{code, args}
	}
	body, err := json.Marshal([]interface{}{code, code, data})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	buf := make([]byte, 0, len(localStart)+len(body)+len(localEnd)+1)
	buf = append(buf, localStart...)
	buf = append(buf, body...)
	buf = append(buf, localEnd...)
	buf = append(buf, 0)
	return buf, nil
}

// LocalResponse is a decoded local protocol reply. An Empty response
// carries no code and no fields; panels send it as a bare
// acknowledgement for commands without a result payload.
type LocalResponse struct {
	Empty  bool
	Code   int
	Fields []json.RawMessage
}

// DecodeLocalResponse parses one response datagram. The terminating NUL
// is required; anything between the markers must be either empty or a
// [code, payload] array where payload is itself an array.
func DecodeLocalResponse(datagram []byte) (LocalResponse, error) {
	if len(datagram) == 0 || datagram[len(datagram)-1] != 0 {
		return LocalResponse{}, fmt.Errorf("%w: missing terminator", ErrFraming)
	}
	body := datagram[:len(datagram)-1]
	if !bytes.HasPrefix(body, []byte(localStart)) || !bytes.HasSuffix(body, []byte(localEnd)) {
		return LocalResponse{}, fmt.Errorf("%w: missing markers", ErrFraming)
	}
	inner := body[len(localStart) : len(body)-len(localEnd)]
	if len(inner) == 0 {
		return LocalResponse{Empty: true}, nil
	}
	var outer []json.RawMessage
	if err := json.Unmarshal(inner, &outer); err != nil {
		return LocalResponse{}, fmt.Errorf("%w: %v", ErrDecoding, err)
	}
	if len(outer) != 2 {
		return LocalResponse{}, fmt.Errorf("%w: expected [code, payload], got %d elements", ErrDecoding, len(outer))
	}
	var code int
	if err := json.Unmarshal(outer[0], &code); err != nil {
		return LocalResponse{}, fmt.Errorf("%w: command code: %v", ErrDecoding, err)
	}
	if code <= 0 {
		return LocalResponse{}, fmt.Errorf("%w: command code %d", ErrDecoding, code)
	}
	var fields []json.RawMessage
	if err := json.Unmarshal(outer[1], &fields); err != nil {
		return LocalResponse{}, fmt.Errorf("%w: payload: %v", ErrDecoding, err)
	}
	return LocalResponse{Code: code, Fields: fields}, nil
}

// PageInfo is the pagination header a panel prepends to list results:
// total element count, 1-based start index of this page, and the number
// of elements that follow in the same response.
type PageInfo struct {
	Total int `json:"total"`
	Start int `json:"start"`
	Count int `json:"nelems"`
}

// DecodePageInfo interprets the first field of a list response as a
// pagination header and returns it together with the page elements.
// The header is only recognized when the element is a three integer
// array whose count matches the number of remaining fields, so scalar
// payloads that happen to start with numbers are not misread as pages.
func DecodePageInfo(fields []json.RawMessage) (PageInfo, []json.RawMessage, error) {
	if len(fields) == 0 {
		return PageInfo{}, nil, fmt.Errorf("%w: empty list payload", ErrDecoding)
	}
	var header []int
	if err := json.Unmarshal(fields[0], &header); err != nil {
		return PageInfo{}, nil, fmt.Errorf("%w: pagination header: %v", ErrDecoding, err)
	}
	if len(header) != 3 {
		return PageInfo{}, nil, fmt.Errorf("%w: pagination header has %d elements", ErrDecoding, len(header))
	}
	info := PageInfo{Total: header[0], Start: header[1], Count: header[2]}
	rest := fields[1:]
	if info.Count != len(rest) {
		return PageInfo{}, nil, fmt.Errorf("%w: header announces %d elements, payload carries %d",
			ErrDecoding, info.Count, len(rest))
	}
	if info.Total < 0 || info.Start < 0 {
		return PageInfo{}, nil, fmt.Errorf("%w: negative pagination header", ErrDecoding)
	}
	return info, rest, nil
}

// UnmarshalFields decodes a positional array payload into a struct by
// matching array elements to exported struct fields in declaration
// order. Trailing fields absent from the payload retain their zero
// values; excess payload elements are an error.
func UnmarshalFields(fields []json.RawMessage, dst interface{}) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecoding, err)
	}
	if err := unmarshalPositional(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrDecoding, err)
	}
	return nil
}
