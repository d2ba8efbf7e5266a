// Package redis connects to Redis with go-redis and provides the shared
// coordination the service needs across replicas.
//
//   - Connect retries until the server answers a PING.
//   - Healthcheck adapts a client to func(context.Context) error probes.
//   - Locker hands out SET NX locks with token-checked release, used so a
//     scheduled job (monthly archival, trial sweep) runs on one replica.
//
// Configuration is read from REDIS_* environment variables into Config. An
// empty REDIS_URL disables Redis and the service falls back to in-process
// deduplication and locking.
//
// # Usage
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	locker := redis.NewLocker(client, cfg.KeyPrefix)
//	release, ok, err := locker.TryLock(ctx, "archive", 10*time.Minute)
//	if err != nil || !ok {
//	    return err
//	}
//	defer release(context.Background())
package redis
