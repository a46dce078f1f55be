package storage

import "fmt"

// Driver names a storage backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverMongo    Driver = "mongo"
	DriverRedis    Driver = "redis"
)

// Valid reports whether d is a known driver.
func (d Driver) Valid() bool {
	switch d {
	case DriverMemory, DriverSQLite, DriverPostgres, DriverMongo, DriverRedis:
		return true
	}
	return false
}

// Config selects and configures the adapter.
type Config struct {
	Driver Driver `mapstructure:"driver" json:"driver" yaml:"driver" default:"memory"`

	// DSN is the connection string: a file path or ":memory:" for sqlite, a
	// postgres URL, or a mongodb URI.
	DSN string `mapstructure:"dsn" json:"dsn" yaml:"dsn"`

	// Database is the MongoDB database name.
	Database string `mapstructure:"database" json:"database" yaml:"database" default:"billing"`

	MaxOpenConns int `mapstructure:"max-open-conns" json:"maxOpenConns" yaml:"max-open-conns" default:"10"`

	Redis RedisConfig `mapstructure:"redis" json:"redis" yaml:"redis"`
}

// RedisConfig holds the redis connection settings.
type RedisConfig struct {
	Host     string `mapstructure:"host" json:"host" yaml:"host" default:"127.0.0.1"`
	Port     string `mapstructure:"port" json:"port" yaml:"port" default:"6379"`
	Password string `mapstructure:"password" json:"password" yaml:"password"`
	DB       int    `mapstructure:"db" json:"db" yaml:"db"`
	// Prefix namespaces every key.
	Prefix string `mapstructure:"prefix" json:"prefix" yaml:"prefix" default:"billing"`
}

// Addr returns host:port.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}
