package conn

import "context"

// Observer provides hooks for connection lifecycle, metrics, and tracing.
// Implementations should be lightweight; callbacks run on hot paths.
type Observer interface {
	OnConnOpen()
	OnConnClose()
	OnConnFailed(err error)
	OnEncrypt(ctx context.Context, plaintextLen int) (context.Context, func(error))
	OnDecrypt(ctx context.Context, ciphertextLen int) (context.Context, func(error))
	OnBadRecord()
	OnAlertSent(code uint8)
	OnKeyUpdate()
}

// ObserverFactory builds a per-connection observer.
type ObserverFactory func(c *Conn) Observer

func observerFromConfig(cfg *Config, c *Conn) Observer {
	if cfg.ObserverFactory != nil {
		return cfg.ObserverFactory(c)
	}
	return cfg.Observer
}
