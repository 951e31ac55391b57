// Package redis carries the cross-instance change feed over Redis
// pub/sub.
//
// Several core processes can share one SQLite file (or sit behind one
// load balancer); each publishes the snapshots it applies and listens for
// the others', so a stream opened on any instance sees every write.
// Client satisfies state.Bus:
//
//	client, err := redis.Connect(cfg.Redis)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	feed := state.NewBusFeed(client, cfg.Redis.Channel, log)
package redis
