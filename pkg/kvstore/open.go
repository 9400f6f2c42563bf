package kvstore

import (
	"fmt"

	"github.com/clustercheck/clustercheck/pkg/config"
)

// Open builds the store selected by cfg.Backend.
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		tlsCfg, err := cfg.Redis.TLS.Build()
		if err != nil {
			return nil, fmt.Errorf("redis tls: %w", err)
		}
		return NewRedisStore(RedisStoreOptions{
			Address:     cfg.Redis.Address,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.DialTimeout(),
			ReadTimeout: cfg.ReadTimeout(),
			TLS:         tlsCfg,
		})
	case config.BackendEtcd:
		tlsCfg, err := cfg.Etcd.TLS.Build()
		if err != nil {
			return nil, fmt.Errorf("etcd tls: %w", err)
		}
		return NewEtcdStore(EtcdStoreOptions{
			Endpoints:   cfg.Etcd.Endpoints,
			DialTimeout: cfg.DialTimeout(),
			Namespace:   cfg.Etcd.Namespace,
			TLS:         tlsCfg,
		})
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}
