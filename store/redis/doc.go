// Package redis implements store.Store on Redis. Every job is a Hash; Sorted
// Sets index pending jobs per queue (ready and delayed), active leases and
// listing order. Claims, resolves, renewals and recovery run as Lua scripts
// so each is atomic on the server.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
