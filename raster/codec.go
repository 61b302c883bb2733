// Package raster evaluates warp and extract requests through a pool of
// worker subprocesses. Workers speak a framed protocol over unix
// sockets: a little-endian uint32 length, a JSON header of that length,
// and for responses a raw little-endian float64 payload of
// nbands*height*width cells with NaN as the nodata value.
package raster

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// maxHeaderSize caps the JSON header length to catch corrupt frames
// before allocating.
const maxHeaderSize = 1 << 20

const (
	OpWarp    = "warp"
	OpExtract = "extract"
)

// Request is the worker-bound frame header.
type Request struct {
	Op         string   `json:"op"`
	Descriptor string   `json:"descriptor"`
	BandNums   []int    `json:"band_nums"`
	SRS        string   `json:"srs,omitempty"`
	Left       float64  `json:"left"`
	Right      float64  `json:"right"`
	Bottom     float64  `json:"bottom"`
	Top        float64  `json:"top"`
	Width      int      `json:"width,omitempty"`
	Height     int      `json:"height,omitempty"`
	Resampling string   `json:"resampling,omitempty"`
	ExtraArgs  []string `json:"extra_args,omitempty"`
}

// ResponseHeader precedes the payload on the way back. A non-empty
// Error means no payload follows.
type ResponseHeader struct {
	Error  string `json:"error,omitempty"`
	NBands int    `json:"nbands"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type Response struct {
	Header ResponseHeader
	Data   []float64
}

func writeHeader(w io.Writer, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(raw))); err != nil {
		return err
	}
	_, err = w.Write(raw)
	return err
}

func readHeader(r io.Reader, v interface{}) error {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return err
	}
	if n == 0 || n > maxHeaderSize {
		return fmt.Errorf("implausible header length %d", n)
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func WriteRequest(w io.Writer, req *Request) error {
	return writeHeader(w, req)
}

func ReadRequest(r io.Reader) (*Request, error) {
	req := &Request{}
	if err := readHeader(r, req); err != nil {
		return nil, err
	}
	if req.Op != OpWarp && req.Op != OpExtract {
		return nil, fmt.Errorf("unknown operation '%s'", req.Op)
	}
	return req, nil
}

func WriteResponse(w io.Writer, resp *Response) error {
	if err := writeHeader(w, &resp.Header); err != nil {
		return err
	}
	if resp.Header.Error != "" {
		return nil
	}
	want := resp.Header.NBands * resp.Header.Height * resp.Header.Width
	if len(resp.Data) != want {
		return fmt.Errorf("payload has %d cells, header says %d", len(resp.Data), want)
	}
	return binary.Write(w, binary.LittleEndian, resp.Data)
}

func ReadResponse(r io.Reader) (*Response, error) {
	resp := &Response{}
	if err := readHeader(r, &resp.Header); err != nil {
		return nil, err
	}
	if resp.Header.Error != "" {
		return resp, nil
	}
	h := resp.Header
	if h.NBands < 0 || h.Height < 0 || h.Width < 0 {
		return nil, fmt.Errorf("negative response shape %dx%dx%d", h.NBands, h.Height, h.Width)
	}
	resp.Data = make([]float64, h.NBands*h.Height*h.Width)
	if err := binary.Read(r, binary.LittleEndian, resp.Data); err != nil {
		return nil, fmt.Errorf("truncated payload: %v", err)
	}
	return resp, nil
}
