package params

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Server struct {
	APIAddr string
	LogFile string
}

type Storage struct {
	DBPath string
}

type Trading struct {
	// DefaultFee is the trading fee fraction applied to newly registered
	// objects when the request does not specify one. Must stay in [0,1).
	DefaultFee decimal.Decimal
}

type Config struct {
	Server  Server
	Storage Storage
	Trading Trading
}

func Default() Config {
	return Config{
		Server: Server{
			APIAddr: ":8080",
			LogFile: "data/server.log",
		},
		Storage: Storage{
			DBPath: "data/exchange.db",
		},
		Trading: Trading{
			DefaultFee: decimal.NewFromFloat(0.1),
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment
// variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if addr := os.Getenv("API_ADDR"); addr != "" {
		cfg.Server.APIAddr = addr
	}
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		cfg.Server.LogFile = logFile
	}
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		cfg.Storage.DBPath = dbPath
	}
	if fee := os.Getenv("DEFAULT_FEE"); fee != "" {
		if d, err := decimal.NewFromString(fee); err == nil {
			cfg.Trading.DefaultFee = d
		}
	}

	return cfg
}
