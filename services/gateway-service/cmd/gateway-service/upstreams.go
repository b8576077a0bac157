package main

import (
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/grpcx"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/runtime"
)

type upstream struct {
	Service string
	Addr    string
}

// parseUpstreams reads "service=host:port" pairs separated by commas.
func parseUpstreams(raw string) ([]upstream, error) {
	var out []upstream
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, addr, ok := strings.Cut(part, "=")
		name, addr = strings.TrimSpace(name), strings.TrimSpace(addr)
		if !ok || name == "" || addr == "" {
			return nil, fmt.Errorf("invalid upstream %q, want service=host:port", part)
		}
		out = append(out, upstream{Service: name, Addr: addr})
	}
	return out, nil
}

// upstreamChecks dials each upstream's gRPC health endpoint. The returned
// close func releases the connections.
func upstreamChecks(ups []upstream, timeout time.Duration) ([]runtime.ReadyCheck, func(), error) {
	conns := make([]*grpc.ClientConn, 0, len(ups))
	closeAll := func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}
	checks := make([]runtime.ReadyCheck, 0, len(ups))
	for _, u := range ups {
		conn, err := grpcx.Dial(u.Addr, grpcx.DialOptions{})
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("dial %s: %w", u.Service, err)
		}
		conns = append(conns, conn)
		checks = append(checks, runtime.ReadyCheck{
			Name:  u.Service,
			Check: grpcx.HealthReadyCheck(conn, u.Service, timeout),
		})
	}
	return checks, closeAll, nil
}
