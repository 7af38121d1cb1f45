package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// dnsCache кеширует результаты LookupHost на ttl, чтобы веерные запросы не резолвили хост заново.
type dnsCache struct {
	ttl        time.Duration
	now        func() time.Time
	lookupHost func(ctx context.Context, host string) ([]string, error)

	mu      sync.RWMutex
	entries map[string]dnsEntry
}

type dnsEntry struct {
	addrs   []string
	expires time.Time
}

func newDNSCache(ttl time.Duration) *dnsCache {
	return &dnsCache{
		ttl:        ttl,
		now:        time.Now,
		lookupHost: net.DefaultResolver.LookupHost,
		entries:    make(map[string]dnsEntry),
	}
}

func (d *dnsCache) lookup(ctx context.Context, host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{host}, nil
	}

	now := d.now()
	d.mu.RLock()
	entry, ok := d.entries[host]
	d.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.addrs, nil
	}

	addrs, err := d.lookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no addresses for host %s", host)
	}

	d.mu.Lock()
	d.entries[host] = dnsEntry{addrs: addrs, expires: now.Add(d.ttl)}
	d.mu.Unlock()
	return addrs, nil
}

// dialContext перебирает закешированные адреса хоста до первого успешного соединения.
func (d *dnsCache) dialContext(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		addrs, err := d.lookup(ctx, host)
		if err != nil {
			return nil, err
		}

		var errs []error
		for _, ip := range addrs {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
			if err == nil {
				return conn, nil
			}
			errs = append(errs, err)
		}
		return nil, errors.Join(errs...)
	}
}

func newTransport(cfg Config, cache *dnsCache) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           cache.dialContext(dialer),
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxConns,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}
