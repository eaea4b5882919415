// Package queue holds the Redis-backed delivery schedule.
package queue

import (
	"fmt"

	"github.com/redis/rueidis"
)

func NewRedisClient(addr, password string) (rueidis.Client, error) {
	client, err := rueidis.NewClient(
		rueidis.ClientOption{
			InitAddress: []string{addr},
			Password:    password,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}
	return client, nil
}
