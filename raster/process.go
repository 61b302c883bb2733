package raster

import (
	"bufio"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"net"
	"os"
	"os/exec"
	"syscall"
)

type ErrorMsg struct {
	Address string
	Replace bool
	Error   error
}

type Task struct {
	Req   *Request
	Resp  chan *Response
	Error chan error
}

// Process is one worker subprocess listening on its own unix socket.
// Tasks are pulled off the shared queue; one connection per task.
type Process struct {
	TaskQueue      chan *Task
	Address        string
	TempFile       string
	Cmd            *exec.Cmd
	CombinedOutput io.ReadCloser
	ErrorMsg       chan *ErrorMsg
}

func NewProcess(tQueue chan *Task, binary string, errChan chan *ErrorMsg, verbose bool) *Process {
	// the temp file reserves a unique socket path for the worker
	tmpFile, err := ioutil.TempFile("", "raster_rpc_")
	if err != nil {
		panic(err)
	}
	tmpFile.Close()
	tmpFileName := tmpFile.Name()
	addr := tmpFileName + "_socket"

	args := []string{"-sock", addr}
	if verbose {
		args = append(args, "-verbose")
	}

	cmd := exec.Command(binary, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGKILL}
	combinedOutput, err := cmd.StderrPipe()
	if err != nil {
		combinedOutput = nil
		log.Printf("failed to obtain worker stderr pipe: %v", err)
	} else {
		cmd.Stdout = cmd.Stderr
	}

	return &Process{tQueue, addr, tmpFileName, cmd, combinedOutput, errChan}
}

func (p *Process) Start() error {
	err := p.Cmd.Start()
	if err != nil {
		os.Remove(p.TempFile)
		p.ErrorMsg <- &ErrorMsg{p.Address, false, fmt.Errorf("failed to start worker: %v", err)}
		return err
	}

	log.Println("raster worker running with PID", p.Cmd.Process.Pid)

	go func() {
		defer os.Remove(p.TempFile)
		defer os.Remove(p.Address)

		for task := range p.TaskQueue {
			conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: p.Address, Net: "unix"})
			if err != nil {
				task.Error <- fmt.Errorf("dial failed: %v", err)
				p.ErrorMsg <- &ErrorMsg{p.Address, true, err}
				break
			}

			if err := WriteRequest(conn, task.Req); err != nil {
				conn.Close()
				task.Error <- fmt.Errorf("error writing request: %v", err)
				continue
			}
			conn.CloseWrite()

			resp, err := ReadResponse(bufio.NewReader(conn))
			conn.Close()
			if err != nil {
				task.Error <- fmt.Errorf("error reading response: %v", err)
				continue
			}

			task.Resp <- resp
		}
	}()

	go func() {
		defer os.Remove(p.TempFile)
		defer os.Remove(p.Address)

		// relay worker stderr and stdout to our log, with pid
		if p.CombinedOutput != nil {
			reader := bufio.NewReader(p.CombinedOutput)
			for {
				line, err := reader.ReadString('\n')
				if err != nil {
					break
				}
				log.Println(p.Cmd.Process.Pid, line)
			}
		}

		if err := p.Cmd.Wait(); err != nil {
			p.ErrorMsg <- &ErrorMsg{p.Address, true, fmt.Errorf("worker exited: %v", err)}
		}
	}()

	return nil
}
