package cube

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os/exec"
	"strings"
)

// StreamCube pipes every chunk of its input through an external
// command. The chunk travels over stdin and stdout as a little-endian
// frame: four uint32 dimensions [nbands, nt, ny, nx] followed by the
// float64 cell payload in band-major order. The command must preserve
// the spatio-temporal shape but may change the number of bands, which
// has to be declared up front.
type StreamCube struct {
	baseCube
	in      Cube
	command []string
	nbands  int
}

func NewStreamCube(in Cube, command []string, nbands int) (*StreamCube, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("stream: no command given")
	}
	if nbands <= 0 {
		return nil, fmt.Errorf("stream: output band count must be positive, got %d", nbands)
	}
	c := &StreamCube{in: in, command: command, nbands: nbands}
	c.stref = *in.STRef()
	c.chunkSize = in.ChunkSize()
	for i := 0; i < nbands; i++ {
		c.bands = append(c.bands, Band{Name: fmt.Sprintf("band%d", i+1), Type: "float64", Scale: 1})
	}
	link(in, c, &c.baseCube)
	return c, nil
}

// encodeChunkFrame serializes a chunk into the streaming wire format.
func encodeChunkFrame(x *ChunkBuffer) []byte {
	xs := x.Size()
	buf := bytes.NewBuffer(make([]byte, 0, 16+8*len(x.Data())))
	for _, d := range xs {
		binary.Write(buf, binary.LittleEndian, uint32(d))
	}
	binary.Write(buf, binary.LittleEndian, x.Data())
	return buf.Bytes()
}

// decodeChunkFrame parses the streaming wire format back into a chunk.
func decodeChunkFrame(raw []byte) (*ChunkBuffer, error) {
	r := bytes.NewReader(raw)
	var dims [4]uint32
	if err := binary.Read(r, binary.LittleEndian, &dims); err != nil {
		return nil, fmt.Errorf("truncated chunk header: %v", err)
	}
	x := NewChunkBuffer(int(dims[0]), int(dims[1]), int(dims[2]), int(dims[3]))
	if err := binary.Read(r, binary.LittleEndian, x.Data()); err != nil {
		return nil, fmt.Errorf("truncated chunk payload: %v", err)
	}
	return x, nil
}

func (c *StreamCube) ReadChunk(id ChunkID) (*ChunkBuffer, error) {
	if id < 0 || int(id) >= c.CountChunks() {
		return EmptyChunk(), nil
	}
	x, err := c.in.ReadChunk(id)
	if err != nil {
		return nil, err
	}
	if x.Empty() {
		// the command still sees the chunk, filled with NaN
		dims := c.ChunkDims(id)
		x = NewFilledChunkBuffer(len(c.in.Bands()), dims[0], dims[1], dims[2], math.NaN())
	}

	cmd := exec.Command(c.command[0], c.command[1:]...)
	cmd.Stdin = bytes.NewReader(encodeChunkFrame(x))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("stream: command '%s' failed for chunk %d: %v: %s",
			strings.Join(c.command, " "), id, err, stderr.String())
	}

	out, err := decodeChunkFrame(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("stream: bad output of '%s' for chunk %d: %v", strings.Join(c.command, " "), id, err)
	}

	xs := x.Size()
	os := out.Size()
	if os[0] != c.nbands || os[1] != xs[1] || os[2] != xs[2] || os[3] != xs[3] {
		return nil, fmt.Errorf("stream: command returned chunk %dx%dx%dx%d, want %dx%dx%dx%d",
			os[0], os[1], os[2], os[3], c.nbands, xs[1], xs[2], xs[3])
	}
	return out, nil
}

func (c *StreamCube) Desc() (*CubeDesc, error) {
	in, err := c.in.Desc()
	if err != nil {
		return nil, err
	}
	return &CubeDesc{
		CubeType: "stream",
		InCube:   in,
		Command:  c.command,
		NBands:   c.nbands,
	}, nil
}
