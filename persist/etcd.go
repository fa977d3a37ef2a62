package persist

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdOptions configures the etcd connection.
type EtcdOptions struct {
	// Endpoints lists the etcd cluster endpoints (e.g., "localhost:2379").
	Endpoints []string

	// DialTimeout is the maximum time to wait for connection establishment.
	DialTimeout time.Duration

	// RequestTimeout bounds individual Get/Set/Remove calls when the
	// caller's context carries no deadline of its own.
	RequestTimeout time.Duration
}

// EtcdBackend implements Backend using an etcd cluster.
type EtcdBackend struct {
	client         *clientv3.Client
	requestTimeout time.Duration
}

// NewEtcdBackend creates an etcd-backed store and verifies connectivity
// with a quick health check before returning.
func NewEtcdBackend(opts EtcdOptions) (*EtcdBackend, error) {
	if len(opts.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints cannot be empty")
	}

	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}

	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 3 * time.Second
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   opts.Endpoints,
		DialTimeout: opts.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	// Verify connectivity with a quick health check
	ctx, cancel := context.WithTimeout(context.Background(), opts.RequestTimeout)
	defer cancel()

	if _, err := cli.Get(ctx, "health-check"); err != nil && err != context.DeadlineExceeded {
		cli.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	return &EtcdBackend{client: cli, requestTimeout: opts.RequestTimeout}, nil
}

func (b *EtcdBackend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.requestTimeout)
}

// Get returns the value stored under key. A missing key reports found
// false with no error.
func (b *EtcdBackend) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	resp, err := b.client.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return "", false, nil
	}
	return string(resp.Kvs[0].Value), true, nil
}

// Set stores value under key.
func (b *EtcdBackend) Set(ctx context.Context, key, value string) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	if _, err := b.client.Put(ctx, key, value); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (b *EtcdBackend) Remove(ctx context.Context, key string) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	if _, err := b.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Close closes the etcd connection.
func (b *EtcdBackend) Close() error {
	return b.client.Close()
}
