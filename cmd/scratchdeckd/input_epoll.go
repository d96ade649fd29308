//go:build linux

package main

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// readInputEventsEpoll multiplexes every configured touch panel through one
// epoll instance. The kernel wakes the goroutine only when a device has data;
// panels emit a burst of ABS events per frame, so each wakeup drains whatever
// is ready.
func readInputEventsEpoll(files []*os.File, events chan<- inputEvent, readErr chan<- error) {
	if len(files) == 0 {
		readErr <- fmt.Errorf("no input devices provided")
		return
	}

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		readErr <- fmt.Errorf("epoll_create1: %w", err)
		return
	}
	defer unix.Close(epfd)

	byFd := make(map[int]*os.File, len(files))
	for _, f := range files {
		fd := int(f.Fd())
		byFd[fd] = f

		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			readErr <- fmt.Errorf("epoll_ctl_add %s: %w", f.Name(), err)
			return
		}
	}

	ready := make([]unix.EpollEvent, 32)
	buf := make([]byte, inputEventSize)

	for {
		n, err := unix.EpollWait(epfd, ready, -1)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			readErr <- fmt.Errorf("epoll_wait: %w", err)
			return
		}

		for i := 0; i < n; i++ {
			fd := int(ready[i].Fd)
			f := byFd[fd]

			if ready[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				// A panel going away is fatal; the supervisor restarts us.
				readErr <- fmt.Errorf("device error/hangup: %s", f.Name())
				return
			}

			rn, err := f.Read(buf)
			if err != nil {
				readErr <- fmt.Errorf("read from %s: %w", f.Name(), err)
				return
			}
			ev, ok := decodeInputEvent(buf[:rn])
			if !ok {
				continue
			}
			events <- ev
		}
	}
}

// readInputEventsSelect is the portable fallback for kernels without epoll.
// Same contract as readInputEventsEpoll; the fd set is rebuilt per iteration
// because select clobbers it.
func readInputEventsSelect(files []*os.File, events chan<- inputEvent, readErr chan<- error) {
	if len(files) == 0 {
		readErr <- fmt.Errorf("no input devices provided")
		return
	}

	var maxFd int
	byFd := make(map[int]*os.File, len(files))
	for _, f := range files {
		fd := int(f.Fd())
		byFd[fd] = f
		if fd > maxFd {
			maxFd = fd
		}
	}

	buf := make([]byte, inputEventSize)

	for {
		var readFds unix.FdSet
		for fd := range byFd {
			readFds.Set(fd)
		}

		n, err := unix.Select(maxFd+1, &readFds, nil, nil, nil)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			readErr <- fmt.Errorf("select: %w", err)
			return
		}
		if n == 0 {
			continue
		}

		for fd, f := range byFd {
			if !readFds.IsSet(fd) {
				continue
			}

			rn, err := f.Read(buf)
			if err != nil {
				readErr <- fmt.Errorf("read from %s: %w", f.Name(), err)
				return
			}
			ev, ok := decodeInputEvent(buf[:rn])
			if !ok {
				continue
			}
			events <- ev
		}
	}
}
