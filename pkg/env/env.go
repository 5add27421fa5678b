package env

import (
	"log"
	"log/slog"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	RedisStore  = "redis"
	MemoryStore = "memory"
)

type Specification struct {
	Version int
	Env     string `default:"production"`

	LogLevel  string `default:"info" split_words:"true"`
	LogFormat string `default:"text" split_words:"true"`

	ServerPort                 string        `default:":8080" split_words:"true"`
	ServerReadTimeoutInSecond  time.Duration `default:"10s" split_words:"true"`
	ServerWriteTimeoutInSecond time.Duration `default:"10s" split_words:"true"`
	ServerMaxHeaderBytes       int           `default:"1048576" split_words:"true"`

	// 0 disables the process wide throttle
	ServerMaxRequestsPerSecond float64 `default:"0" split_words:"true"`
	ServerBurst                int     `default:"100" split_words:"true"`

	Store string `default:"redis"`

	RedisAddr         string        `default:"localhost:6379" split_words:"true"`
	RedisPassword     string        `default:"" split_words:"true"`
	RedisDb           int           `default:"0" split_words:"true"`
	RedisPoolSize     int           `default:"100" split_words:"true"`
	RedisTlsEnabled   bool          `default:"false" split_words:"true"`
	RedisDialTimeout  time.Duration `default:"5s" split_words:"true"`
	RedisReadTimeout  time.Duration `default:"3s" split_words:"true"`
	RedisWriteTimeout time.Duration `default:"3s" split_words:"true"`
	RedisScripted     bool          `default:"false" split_words:"true"`

	// APP_API_KEYS="key1:1,key2:2" maps API keys to subject ids
	ApiKeys     map[string]int `split_words:"true"`
	AdminApiKey string         `split_words:"true"`

	ConfigFile string `default:"./config.yaml" split_words:"true"`
}

var (
	once        sync.Once
	envInstance Specification
)

func GetEnv() *Specification {
	once.Do(func() {
		slog.Info("initializing env...")
		err := envconfig.Process("app", &envInstance)
		if err != nil {
			log.Fatal(err.Error())
		}
	})

	return &envInstance
}
