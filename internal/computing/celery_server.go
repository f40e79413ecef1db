package computing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/gocelery/gocelery"
	"github.com/gomodule/redigo/redis"
	"golang.org/x/xerrors"

	"github.com/lagrangedao/go-computing-market/constants"
)

type CeleryService struct {
	cli *gocelery.CeleryClient
}

func NewRedisPool(url string, password string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     5,                 // maximum number of idle connections in the pool
		MaxActive:   0,                 // maximum number of connections allocated by the pool at a given time
		IdleTimeout: 240 * time.Second, // close connections after remaining idle for this duration
		Dial: func() (redis.Conn, error) {
			if password != "" {
				return redis.DialURL(url, redis.DialPassword(password))
			}
			return redis.DialURL(url)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			_, err := c.Do("PING")
			return err
		},
	}
}

func NewCeleryService(pool *redis.Pool) (*CeleryService, error) {
	celeryClient, err := gocelery.NewCeleryClient(
		gocelery.NewRedisBroker(pool),
		gocelery.NewRedisBackend(pool),
		2)
	if err != nil {
		return nil, xerrors.Errorf("init celery service: %w", err)
	}
	return &CeleryService{cli: celeryClient}, nil
}

func (s *CeleryService) RegisterTask(taskName string, task interface{}) {
	s.cli.Register(taskName, task)
}

func (s *CeleryService) DelayTask(taskName string, params ...interface{}) (*gocelery.AsyncResult, error) {
	return s.cli.Delay(taskName, params...)
}

func (s *CeleryService) Start() {
	s.cli.StartWorker()
}

func (s *CeleryService) Stop() {
	s.cli.StopWorker()
}

// SyncJobCreatedTask adapts a sync pass to a celery task, so an external beat
// scheduler can enqueue market.sync_job_created. Negative bounds mean "resume
// from the cursor". The result is the JSON encoded SyncResult.
func SyncJobCreatedTask(driver *SyncDriver) func(fromBlock, toBlock int) string {
	return func(fromBlock, toBlock int) string {
		var req SyncRequest
		if fromBlock >= 0 && toBlock >= 0 {
			from, to := uint64(fromBlock), uint64(toBlock)
			req = SyncRequest{FromBlock: &from, ToBlock: &to}
		}

		result, err := driver.Sync(context.Background(), req)
		if err != nil {
			logs.GetLogger().Errorf("task %s failed, error: %v", constants.TASK_SYNC_JOB_CREATED, err)
			return `{"error":` + quote(err.Error()) + `}`
		}
		out, err := json.Marshal(result)
		if err != nil {
			logs.GetLogger().Errorf("task %s: encode result, error: %v", constants.TASK_SYNC_JOB_CREATED, err)
			return "{}"
		}
		return string(out)
	}
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
