// Package cache mirrors presence into Valkey so other processes (admin
// tooling, a future second instance) can read who is online without asking
// this server.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/valkey-io/valkey-go"
)

const (
	onlineKey   = "chatsync:online"
	lastSeenKey = "chatsync:lastseen"
)

// Presence is a valkey-backed presence mirror.
type Presence struct {
	client valkey.Client
}

// NewPresence connects to addr and verifies the server answers.
func NewPresence(ctx context.Context, addr string) (*Presence, error) {
	if addr == "" {
		return nil, errors.New("valkey: address is empty")
	}
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("valkey: connect: %w", err)
	}
	p := &Presence{client: client}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := p.Ping(pingCtx); err != nil {
		client.Close()
		return nil, err
	}
	return p, nil
}

// Online adds email to the online set.
func (p *Presence) Online(ctx context.Context, email string) error {
	cmd := p.client.B().Sadd().Key(onlineKey).Member(email).Build()
	if err := p.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("valkey: sadd: %w", err)
	}
	return nil
}

// Offline removes email from the online set and records at as its lastSeen.
func (p *Presence) Offline(ctx context.Context, email string, at time.Time) error {
	cmds := valkey.Commands{
		p.client.B().Srem().Key(onlineKey).Member(email).Build(),
		p.client.B().Hset().Key(lastSeenKey).FieldValue().
			FieldValue(email, strconv.FormatInt(at.UnixMilli(), 10)).Build(),
	}
	for _, resp := range p.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("valkey: offline: %w", err)
		}
	}
	return nil
}

// Reset clears the online set. The server calls it on start, since nobody is
// connected to a fresh process.
func (p *Presence) Reset(ctx context.Context) error {
	if err := p.client.Do(ctx, p.client.B().Del().Key(onlineKey).Build()).Error(); err != nil {
		return fmt.Errorf("valkey: del: %w", err)
	}
	return nil
}

// Ping verifies connectivity.
func (p *Presence) Ping(ctx context.Context) error {
	if err := p.client.Do(ctx, p.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("valkey: ping: %w", err)
	}
	return nil
}

// Close releases the client.
func (p *Presence) Close() {
	p.client.Close()
}
