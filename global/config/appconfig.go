package config

import "time"

// AppConfig is the process configuration, filled from PROOM_* environment
// variables on top of the defaults below.
type AppConfig struct {
	NodeId   int64  `env:"NODE_ID" envDefault:"1"` // snowflake node, 0~1023
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	Store    string `env:"STORE" envDefault:"redis"` // redis | postgres | memory
	Version  string `env:"VERSION" envDefault:"dev"`

	Redis     RedisConfig     `envPrefix:"REDIS_"`
	Postgres  PostgresConfig  `envPrefix:"PG_"`
	Mongo     MongoConfig     `envPrefix:"MONGO_"`
	Events    EventsConfig    `envPrefix:"EVENTS_"`
	Auth      AuthConfig      `envPrefix:"AUTH_"`
	Lifecycle LifecycleConfig `envPrefix:"LIFECYCLE_"`
	Nacos     NacosConfig     `envPrefix:"NACOS_"`
}

type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"127.0.0.1:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	PoolSize int    `env:"POOL_SIZE" envDefault:"20"`
	Prefix   string `env:"PREFIX" envDefault:"sg:"`
}

type PostgresConfig struct {
	URL string `env:"URL"`
}

type MongoConfig struct {
	Enabled     bool   `env:"ENABLED" envDefault:"false"`
	Uri         string `env:"URI" envDefault:"mongodb://localhost:27017"`
	Database    string `env:"DATABASE" envDefault:"proom"`
	Username    string `env:"USERNAME"`
	Password    string `env:"PASSWORD"`
	MaxPoolSize int    `env:"MAX_POOL_SIZE" envDefault:"20"`
	Collection  string `env:"COLLECTION" envDefault:"webhook_failures"`
}

type EventsConfig struct {
	Sink          string   `env:"SINK" envDefault:"none"` // none | nats | kafka
	NatsServers   []string `env:"NATS_SERVERS" envDefault:"nats://127.0.0.1:4222"`
	NatsUser      string   `env:"NATS_USER"`
	NatsPassword  string   `env:"NATS_PASSWORD"`
	NatsJetStream bool     `env:"NATS_JETSTREAM" envDefault:"false"`
	SubjectPrefix string   `env:"SUBJECT_PREFIX" envDefault:"proom.room"`
	KafkaBrokers  []string `env:"KAFKA_BROKERS" envDefault:"127.0.0.1:9092"`
	KafkaTopic    string   `env:"KAFKA_TOPIC" envDefault:"proom.room.lifecycle"`
}

type AuthConfig struct {
	JWTSecret   string `env:"JWT_SECRET"`
	JWTAlg      string `env:"JWT_ALG" envDefault:"HS256"`
	TrustHeader bool   `env:"TRUST_HEADER" envDefault:"false"`
}

type LifecycleConfig struct {
	MaxRetries   int           `env:"MAX_RETRIES" envDefault:"3"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"2s"`
}

// NacosConfig enables hot reload of the tunables when Addr is set.
type NacosConfig struct {
	Addr      string `env:"ADDR"`
	Port      uint64 `env:"PORT" envDefault:"8848"`
	Namespace string `env:"NAMESPACE" envDefault:"public"`
	Username  string `env:"USERNAME"`
	Password  string `env:"PASSWORD"`
	DataId    string `env:"DATA_ID" envDefault:"proom.yaml"`
	Group     string `env:"GROUP" envDefault:"DEFAULT_GROUP"`
}
