package comm_test

import (
	"io"
	"log"
	"net"
	"testing"
	"time"

	"github.com/nasa-jpl/adrctl/comm"
)

func tcpEchoServer(addr string) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatal("could not listen, debug test aborted")
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Println("error accepting connection:", err)
			continue
		}
		go func() { io.Copy(conn, conn) }()
	}
}

func TestRemoteDeviceSendRecvRoundTrips(t *testing.T) {
	addr := "localhost:8766"
	go tcpEchoServer(addr)
	time.Sleep(10 * time.Millisecond)

	rd := comm.NewRemoteDevice(addr, false, nil, nil)
	if err := rd.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rd.Close()

	resp, err := rd.SendRecv([]byte("*IDN?"))
	if err != nil {
		t.Fatalf("send/recv: %v", err)
	}
	if string(resp) != "*IDN?" {
		t.Errorf("echoed response = %q, want %q", resp, "*IDN?")
	}
}

func TestRemoteDeviceOpenIsIdempotent(t *testing.T) {
	addr := "localhost:8767"
	go tcpEchoServer(addr)
	time.Sleep(10 * time.Millisecond)

	rd := comm.NewRemoteDevice(addr, false, nil, nil)
	if err := rd.Open(); err != nil {
		t.Fatalf("first open: %v", err)
	}
	defer rd.Close()
	if err := rd.Open(); err != nil {
		t.Fatalf("second open should be a no-op, got: %v", err)
	}
}

func TestRemoteDeviceSendRecvWithoutOpenFails(t *testing.T) {
	rd := comm.NewRemoteDevice("localhost:0", false, nil, nil)
	if _, err := rd.SendRecv([]byte("RD?")); err != comm.ErrNotConnected {
		t.Errorf("SendRecv without Open: got %v, want ErrNotConnected", err)
	}
}
