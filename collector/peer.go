package collector

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/Monika731/SecureEVoting/protocol"
)

// ExchangeAggregates runs the inter-collector rendezvous: each side discloses
// its own share aggregate and receives the peer's over two single-shot
// connections. The fixed role-based ordering makes the exchange deadlock-free
// regardless of which process reaches it first: the secondary dials and sends
// before listening, the primary listens before dialing.
//
// Every step carries an explicit deadline. Dialing retries until the deadline
// because the peer may not have closed its voting phase yet; exceeding the
// deadline surfaces a peer-unavailability error instead of hanging the run.
func (c *Collector) ExchangeAggregates(ctx context.Context) error {
	own, err := c.OwnShareAggregate()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.peerExchangeTimeout())
	defer cancel()
	deadline, _ := ctx.Deadline()

	var peer *protocol.Aggregate
	switch c.cfg.Role {
	case RoleSecondary:
		if err := c.sendAggregate(ctx, deadline, own); err != nil {
			return fmt.Errorf("sending aggregate to peer: %w", err)
		}
		peer, err = c.receiveAggregate(ctx, deadline)
		if err != nil {
			return fmt.Errorf("receiving peer aggregate: %w", err)
		}
	case RolePrimary:
		peer, err = c.receiveAggregate(ctx, deadline)
		if err != nil {
			return fmt.Errorf("receiving peer aggregate: %w", err)
		}
		if err := c.sendAggregate(ctx, deadline, own); err != nil {
			return fmt.Errorf("sending aggregate to peer: %w", err)
		}
	}

	return c.setPeerAggregate(peer)
}

// sendAggregate opens an outbound connection to the peer's receive endpoint
// and writes the tagged aggregate frame. The dial is retried until the
// deadline since the peer's listener comes up only after its own close.
func (c *Collector) sendAggregate(ctx context.Context, deadline time.Time, agg *protocol.Aggregate) error {
	conn, err := dialWithRetry(ctx, c.cfg.PeerDialAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}
	if err := protocol.WriteFrame(conn, protocol.FormatAggregate(agg)); err != nil {
		return err
	}
	c.log.Info("sent share aggregate to peer", "peer", c.cfg.PeerDialAddr)
	return nil
}

// receiveAggregate opens the aggregate-receive endpoint and blocks for the
// peer's single connection, bounded by the deadline.
func (c *Collector) receiveAggregate(ctx context.Context, deadline time.Time) (*protocol.Aggregate, error) {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", c.cfg.PeerListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", c.cfg.PeerListenAddr, err)
	}
	defer ln.Close()

	if tcpLn, ok := ln.(*net.TCPListener); ok {
		if err := tcpLn.SetDeadline(deadline); err != nil {
			return nil, err
		}
	}

	conn, err := ln.Accept()
	if err != nil {
		return nil, fmt.Errorf("waiting for peer on %s: %w", c.cfg.PeerListenAddr, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	line, err := protocol.ReadFrame(bufio.NewReader(conn))
	if err != nil {
		return nil, err
	}
	return protocol.ParseAggregate(line)
}

// dialWithRetry dials the address until it succeeds or the context expires.
const peerDialRetryInterval = 250 * time.Millisecond

func dialWithRetry(ctx context.Context, addr string) (net.Conn, error) {
	dialer := &net.Dialer{}
	for {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("peer %s unavailable: %w (last dial error: %v)", addr, ctx.Err(), err)
		case <-time.After(peerDialRetryInterval):
		}
	}
}
