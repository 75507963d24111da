package db

import "github.com/spf13/viper"

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// LoadPostgresConfig reads connection settings from the environment with
// local-development defaults.
func LoadPostgresConfig() PostgresConfig {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "coupons")
	v.SetDefault("DB_SSLMODE", "disable")

	return PostgresConfig{
		Host:     v.GetString("DB_HOST"),
		Port:     v.GetInt("DB_PORT"),
		User:     v.GetString("DB_USER"),
		Password: v.GetString("DB_PASSWORD"),
		DBName:   v.GetString("DB_NAME"),
		SSLMode:  v.GetString("DB_SSLMODE"),
	}
}
