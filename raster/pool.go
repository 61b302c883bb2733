package raster

import (
	"fmt"
	"log"

	"github.com/maesbri-forks-geo/gdalcubes/cube"
)

const taskQueueSize = 400

// ProcessPool runs n worker subprocesses over a shared task queue and
// restarts workers that die or lose their socket. It implements
// cube.RasterFacility.
type ProcessPool struct {
	Pool      []*Process
	TaskQueue chan *Task
	ErrorMsg  chan *ErrorMsg
}

func (p *ProcessPool) AddQueue(task *Task) {
	if len(p.TaskQueue) > taskQueueSize-10 {
		task.Error <- fmt.Errorf("raster task queue is full")
		return
	}
	p.TaskQueue <- task
}

func (p *ProcessPool) CreateProcess(executable string, verbose bool) (*Process, error) {
	proc := NewProcess(p.TaskQueue, executable, p.ErrorMsg, verbose)
	err := proc.Start()
	return proc, err
}

func CreateProcessPool(n int, executable string, verbose bool) (*ProcessPool, error) {
	if executable == "" {
		return nil, fmt.Errorf("no raster worker binary configured")
	}

	p := &ProcessPool{[]*Process{}, make(chan *Task, taskQueueSize), make(chan *ErrorMsg)}

	go func() {
		for msg := range p.ErrorMsg {
			if !msg.Replace {
				log.Printf("worker %v: %v", msg.Address, msg.Error)
				continue
			}
			log.Printf("worker %v: %v, restarting...", msg.Address, msg.Error)
			for ip, proc := range p.Pool {
				if proc != nil && msg.Address == proc.Address {
					p.Pool[ip] = nil
					proc, err := p.CreateProcess(executable, verbose)
					if err == nil {
						p.Pool[ip] = proc
					}
					break
				}
			}
		}
	}()

	for i := 0; i < n; i++ {
		proc, err := p.CreateProcess(executable, verbose)
		if err != nil {
			return nil, err
		}
		p.Pool = append(p.Pool, proc)
	}

	return p, nil
}

func (p *ProcessPool) do(req *Request) (*cube.RasterPlanes, error) {
	task := &Task{Req: req, Resp: make(chan *Response), Error: make(chan error)}
	p.AddQueue(task)

	select {
	case resp := <-task.Resp:
		if resp.Header.Error != "" {
			return nil, fmt.Errorf("%s of '%s' failed: %s", req.Op, req.Descriptor, resp.Header.Error)
		}
		h := resp.Header
		if len(resp.Data) != h.NBands*h.Height*h.Width {
			return nil, fmt.Errorf("%s of '%s' returned %d cells for a %dx%dx%d grid",
				req.Op, req.Descriptor, len(resp.Data), h.NBands, h.Height, h.Width)
		}
		return &cube.RasterPlanes{NBands: h.NBands, Height: h.Height, Width: h.Width, Data: resp.Data}, nil
	case err := <-task.Error:
		return nil, err
	}
}

func (p *ProcessPool) Warp(req *cube.WarpRequest) (*cube.RasterPlanes, error) {
	return p.do(&Request{
		Op:         OpWarp,
		Descriptor: req.Descriptor,
		BandNums:   req.BandNums,
		SRS:        req.SRS,
		Left:       req.Left,
		Right:      req.Right,
		Bottom:     req.Bottom,
		Top:        req.Top,
		Width:      req.Width,
		Height:     req.Height,
		Resampling: req.Resampling,
		ExtraArgs:  req.ExtraArgs,
	})
}

func (p *ProcessPool) Extract(req *cube.ExtractRequest) (*cube.RasterPlanes, error) {
	return p.do(&Request{
		Op:         OpExtract,
		Descriptor: req.Descriptor,
		BandNums:   req.BandNums,
		SRS:        req.SRS,
		Left:       req.Left,
		Right:      req.Right,
		Bottom:     req.Bottom,
		Top:        req.Top,
		ExtraArgs:  req.ExtraArgs,
	})
}
